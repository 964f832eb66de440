package auth

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"live-relay/config"
	"live-relay/utils"
)

func TestGenerateToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookie.json")
	if got := GenerateToken(path, 1); got != "" {
		t.Errorf("token without cookie = %q, want empty", got)
	}
	if got := GetCookieString(path); got != "" {
		t.Errorf("cookie string without cookie = %q, want empty", got)
	}

	cookie := &config.Cookie{SESSDATA: "sess", DedeUserID: "42"}
	if err := cookie.Save(path); err != nil {
		t.Fatal(err)
	}

	sum := md5.Sum([]byte("sess100"))
	if got, want := GenerateToken(path, 100), hex.EncodeToString(sum[:]); got != want {
		t.Errorf("GenerateToken = %q, want %q", got, want)
	}
	if got := GetCookieString(path); got != "SESSDATA=sess; bili_jct=; DedeUserID=42; DedeUserID__ckMd5=; sid=" {
		t.Errorf("GetCookieString = %q", got)
	}
}

func TestIsLoggedInExpired(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookie.json")
	cookie := &config.Cookie{SESSDATA: "sess", ExpireTime: time.Now().Add(-time.Hour).Unix()}
	if err := cookie.Save(path); err != nil {
		t.Fatal(err)
	}
	if IsLoggedIn(path) {
		t.Error("expired cookie should not be logged in")
	}
}

func TestQRCodeLogin(t *testing.T) {
	var polls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/generate", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":0,"data":{"qrcode_key":"key1","url":"https://example.com/qr"}}`)
	})
	mux.HandleFunc("/poll", func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("qrcode_key") != "key1" {
			fmt.Fprint(w, `{"code":0,"data":{"code":1,"message":"bad key"}}`)
			return
		}
		if atomic.AddInt32(&polls, 1) == 1 {
			fmt.Fprint(w, `{"code":0,"data":{"code":86101}}`)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "SESSDATA", Value: "sess"})
		http.SetCookie(w, &http.Cookie{Name: "bili_jct", Value: "jct"})
		fmt.Fprint(w, `{"code":0,"data":{"code":0}}`)
	})
	mux.HandleFunc("/nav", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":0,"data":{"isLogin":true,"uname":"tester"}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	oldLogin, oldPoll, oldNav, oldInterval := LoginURL, PollURL, NavURL, pollInterval
	LoginURL, PollURL, NavURL, pollInterval = srv.URL+"/generate", srv.URL+"/poll", srv.URL+"/nav", time.Millisecond
	defer func() {
		LoginURL, PollURL, NavURL, pollInterval = oldLogin, oldPoll, oldNav, oldInterval
	}()

	dir := t.TempDir()
	path := filepath.Join(dir, "cookie.json")
	if err := QRCodeLogin(path); err != nil {
		t.Fatalf("QRCodeLogin: %v", err)
	}

	cookie, err := config.LoadCookie(path)
	if err != nil {
		t.Fatalf("LoadCookie: %v", err)
	}
	if cookie.SESSDATA != "sess" || cookie.BiliJct != "jct" {
		t.Errorf("cookie = %+v", cookie)
	}
	if !utils.FileExists(filepath.Join(dir, "qrcode.png")) {
		t.Error("qrcode.png not written")
	}
	if !IsLoggedIn(path) {
		t.Error("IsLoggedIn should be true after login")
	}
	if n := atomic.LoadInt32(&polls); n != 2 {
		t.Errorf("polls = %d, want 2", n)
	}
}
