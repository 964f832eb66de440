package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"live-relay/auth"
	"live-relay/client"
	"live-relay/config"
	"live-relay/console"
	"live-relay/hub"
	"live-relay/mirror"
	"live-relay/monitor"
	"live-relay/protocol"
	"live-relay/server"
	"live-relay/utils"
)

func main() {
	configPath := flag.String("config", "", "YAML 配置文件路径")
	login := flag.Bool("login", false, "扫码登录 B 站并保存 cookie 后退出")
	withConsole := flag.Bool("console", false, "从标准输入读取本地命令")
	flag.Parse()

	// 读取配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		utils.Logger.Fatalf("加载配置失败: %v", err)
	}

	// 初始化日志
	utils.InitLogger(cfg.LogLevel)

	if *login {
		utils.Logger.Info("开始扫码登录...")
		if err := auth.QRCodeLogin(cfg.CookiePath); err != nil {
			utils.Logger.Fatalf("登录失败: %v", err)
		}
		utils.Logger.Info("登录成功！")
		return
	}

	// 检查登录状态
	if cfg.Provider == config.ProviderBilibili {
		if auth.IsLoggedIn(cfg.CookiePath) {
			utils.Logger.Info("检测到有效登录状态")
		} else {
			utils.Logger.Warn("未检测到有效登录状态，将以游客身份连接，可使用 -login 扫码登录")
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := hub.New()
	provider := client.NewProvider(cfg)
	manager := client.NewManager(cfg, provider, h)
	router := server.NewRouter(manager, h)
	srv := server.NewServer(cfg, router, h)

	if cfg.MQTT.Broker != "" {
		m, err := mirror.NewMQTTMirror(cfg.MQTT)
		if err != nil {
			utils.Logger.Errorf("MQTT 镜像不可用: %v", err)
		} else {
			h.AddMirror(m)
			defer m.Close()
		}
	}

	go monitor.New(router, cfg.StatusInterval).Run(ctx)

	if *withConsole {
		go console.New(router, os.Stdin).Run(ctx)
	}

	if cfg.InitialTarget != "" {
		router.Execute(nil, protocol.Command{Name: protocol.CommandWatch, Username: cfg.InitialTarget})
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	fmt.Printf("直播中继已启动 (%s)，订阅地址 ws://%s/ws\n", provider.Name(), cfg.Addr())

	// 等待退出信号
	select {
	case err := <-errCh:
		if err != nil {
			utils.Logger.Fatalf("监听失败: %v", err)
		}
		return
	case sig := <-sigCh:
		cancel()
		fmt.Println("正在关闭...")
		router.Shutdown(fmt.Sprintf("Relay shutting down (%s)", signalName(sig)))
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.Logger.Warnf("关闭服务失败: %v", err)
	}
}

func signalName(sig os.Signal) string {
	switch sig {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return sig.String()
	}
}
