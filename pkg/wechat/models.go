package wechat

import (
	"encoding/json"
	"fmt"
)

// BaseResp carries the vendor result code present on every JSON response.
type BaseResp struct {
	Ret    int    `json:"ret"`
	ErrMsg string `json:"err_msg"`
}

// AskResponse is the body of a QR status poll.
type AskResponse struct {
	BaseResp BaseResp `json:"base_resp"`
	Status   int      `json:"status"`
}

// StartLoginResponse is the body returned when opening a handshake.
type StartLoginResponse struct {
	BaseResp BaseResp `json:"base_resp"`
}

// LoginResponse is the body of the token exchange after a confirmed scan.
type LoginResponse struct {
	BaseResp    BaseResp `json:"base_resp"`
	RedirectURL string   `json:"redirect_url"`
}

// AccountEntry is one hit from an official-account search.
type AccountEntry struct {
	FakeID       string `json:"fakeid"`
	Nickname     string `json:"nickname"`
	Alias        string `json:"alias"`
	RoundHeadImg string `json:"round_head_img"`
	Signature    string `json:"signature"`
	ServiceType  int    `json:"service_type"`
}

// SearchBizResponse is the body of an account search.
type SearchBizResponse struct {
	BaseResp BaseResp       `json:"base_resp"`
	Total    int            `json:"total"`
	List     []AccountEntry `json:"list"`
}

// ArticleMeta is one published article as the listing endpoint describes it.
// ItemShowType is a pointer so that an explicit zero survives round-trips
// through storage instead of collapsing into "absent".
type ArticleMeta struct {
	AID          string `json:"aid"`
	Title        string `json:"title"`
	Link         string `json:"link"`
	Cover        string `json:"cover"`
	Digest       string `json:"digest"`
	UpdateTime   int64  `json:"update_time"`
	CreateTime   int64  `json:"create_time"`
	ItemShowType *int   `json:"item_show_type"`
}

// PublishInfo groups the articles released in one publish action.
type PublishInfo struct {
	AppMsgEx []ArticleMeta `json:"appmsgex"`
}

// PublishPage is a decoded listing page. The provider double-encodes it:
// the response embeds publish_page as a JSON string, and each entry in
// publish_list embeds publish_info as another JSON string.
type PublishPage struct {
	TotalCount  int            `json:"total_count"`
	PublishList []PublishEntry `json:"publish_list"`
}

// PublishEntry wraps one publish action's inner JSON string.
type PublishEntry struct {
	PublishInfo string `json:"publish_info"`
}

type publishEnvelope struct {
	BaseResp    BaseResp `json:"base_resp"`
	PublishPage string   `json:"publish_page"`
}

// Articles flattens every publish entry on the page into a single slice,
// preserving the provider's reverse-chronological order.
func (p *PublishPage) Articles() ([]ArticleMeta, error) {
	var out []ArticleMeta
	for i, item := range p.PublishList {
		if item.PublishInfo == "" {
			continue
		}
		var info PublishInfo
		if err := json.Unmarshal([]byte(item.PublishInfo), &info); err != nil {
			return nil, fmt.Errorf("decoding publish entry %d: %w", i, err)
		}
		out = append(out, info.AppMsgEx...)
	}
	return out, nil
}

// decodePublishPage peels both layers of JSON-in-JSON encoding.
func decodePublishPage(body []byte) (*PublishPage, BaseResp, error) {
	var env publishEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, BaseResp{}, fmt.Errorf("decoding listing envelope: %w", err)
	}
	if env.PublishPage == "" {
		return nil, env.BaseResp, nil
	}
	var page PublishPage
	if err := json.Unmarshal([]byte(env.PublishPage), &page); err != nil {
		return nil, env.BaseResp, fmt.Errorf("decoding listing page: %w", err)
	}
	return &page, env.BaseResp, nil
}
