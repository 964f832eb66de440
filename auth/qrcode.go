package auth

import (
	"fmt"
	"path/filepath"

	"live-relay/utils"

	"github.com/skip2/go-qrcode"
)

// 二维码登录，成功后将cookie保存到 cookiePath
func QRCodeLogin(cookiePath string) error {
	// 获取二维码
	qrcodeKey, qrcodeURL, err := getLoginToken()
	if err != nil {
		return err
	}

	// 生成二维码
	err = generateQRCode(qrcodeURL, filepath.Join(filepath.Dir(cookiePath), "qrcode.png"))
	if err != nil {
		return err
	}

	utils.Logger.Info("请使用手机B站扫描二维码登录")
	utils.Logger.Info("二维码URL: " + qrcodeURL)

	// 轮询登录状态
	cookie, err := pollLogin(qrcodeKey)
	if err != nil {
		return err
	}

	// 保存cookie
	err = cookie.Save(cookiePath)
	if err != nil {
		return err
	}

	// 显示用户信息
	if uname, err := GetUserName(cookiePath); err == nil {
		utils.Logger.Infof("登录用户: %s", uname)
	}

	return nil
}

// 生成二维码文件并在终端显示
func generateQRCode(url, pngPath string) error {
	qr, err := qrcode.New(url, qrcode.Medium)
	if err != nil {
		return err
	}

	if err := utils.EnsureDir(filepath.Dir(pngPath)); err != nil {
		return err
	}
	err = qr.WriteFile(256, pngPath)
	if err != nil {
		return err
	}

	fmt.Println(qr.ToSmallString(false))

	return nil
}
