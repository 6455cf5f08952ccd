package wechat

import (
	"fmt"
	"net/url"
	"time"
)

const (
	// BaseURL is the base URL for the MP platform
	BaseURL = "https://mp.weixin.qq.com"

	// StartLoginEndpoint opens a login handshake
	StartLoginEndpoint = "/cgi-bin/bizlogin?action=startlogin"

	// LoginEndpoint exchanges a confirmed scan for a durable token
	LoginEndpoint = "/cgi-bin/bizlogin?action=login"

	// QRCodeEndpoint serves the QR image for the current handshake
	QRCodeEndpoint = "/cgi-bin/scanloginqrcode"

	// SearchBizEndpoint searches official accounts by name
	SearchBizEndpoint = "/cgi-bin/searchbiz"

	// PublishListEndpoint lists an account's published articles
	PublishListEndpoint = "/cgi-bin/appmsgpublish"

	// HomeEndpoint is the post-login landing page
	HomeEndpoint = "/cgi-bin/home"

	// DefaultPageSize is the listing page size the provider tolerates
	DefaultPageSize = 5
)

// Vendor status codes returned by the QR status poll
const (
	StatusNotScanned = 0
	StatusConfirmed  = 1
	StatusScanned    = 6
)

// RetFingerprintRejected is the vendor code for a failed request-signature check
const RetFingerprintRejected = 200013

// startLoginBody builds the form body for opening a handshake
func startLoginBody() string {
	return fmt.Sprintf("userlang=zh_CN&redirect_url=&login_type=3&sessionid=%d&token=&lang=zh_CN&f=json&ajax=1",
		time.Now().UnixMilli())
}

// loginBody is the form body for the token exchange after confirmation
const loginBody = "userlang=zh_CN&redirect_url=&cookie_forbidden=0&cookie_cleaned=1&plugin_used=0&login_type=3&token=&lang=zh_CN&f=json&ajax=1"

// qrCodeURL constructs the URL for fetching the QR image
func qrCodeURL(base string) string {
	return fmt.Sprintf("%s%s?action=getqrcode&random=%d", base, QRCodeEndpoint, time.Now().UnixMilli())
}

// askStatusURL constructs the URL for polling scan status
func askStatusURL(base string) string {
	return fmt.Sprintf("%s%s?action=ask&token=&lang=zh_CN&f=json&ajax=1", base, QRCodeEndpoint)
}

// searchBizURL constructs the account search URL
func searchBizURL(base, token, fp, query string) string {
	return fmt.Sprintf("%s%s?action=search_biz&token=%s&lang=zh_CN&f=json&ajax=1&random=%d&query=%s&begin=0&count=5&fingerprint=%s",
		base, SearchBizEndpoint, token, time.Now().UnixMilli(), url.QueryEscape(query), fp)
}

// publishListURL constructs the paginated listing URL
func publishListURL(base, token, fp, fakeID string, begin, count int) string {
	return fmt.Sprintf("%s%s?sub=list&search_field=null&begin=%d&count=%d&query=&fakeid=%s&type=101_1&free_publish_type=1&sub_action=list_ex&fingerprint=%s&token=%s&lang=zh_CN&f=json&ajax=1",
		base, PublishListEndpoint, begin, count, fakeID, fp, token)
}

// homeURL constructs the landing page URL used to scrape account info
func homeURL(base, token string) string {
	return fmt.Sprintf("%s%s?t=home/index&lang=zh_CN&token=%s", base, HomeEndpoint, token)
}
