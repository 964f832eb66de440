package config

import (
	"encoding/json"
	"os"

	"live-relay/utils"
)

// Cookie 结构
type Cookie struct {
	SESSDATA          string `json:"SESSDATA"`
	BiliJct           string `json:"bili_jct"`
	DedeUserID        string `json:"DedeUserID"`
	DedeUserID__ckMd5 string `json:"DedeUserID__ckMd5"`
	Sid               string `json:"sid"`
	ExpireTime        int64  `json:"expire_time"`
}

// 保存Cookie
func (c *Cookie) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return utils.WriteFile(path, data, 0600)
}

// 加载Cookie
func LoadCookie(path string) (*Cookie, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cookie Cookie
	err = json.Unmarshal(data, &cookie)
	if err != nil {
		return nil, err
	}

	return &cookie, nil
}
