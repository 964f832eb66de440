package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"live-relay/config"
	"live-relay/hub"
	"live-relay/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// 写超时
	writeWait = 10 * time.Second

	// 等待下一个 pong 的时间
	pongWait = 60 * time.Second

	// ping 周期，必须小于 pongWait
	pingPeriod = (pongWait * 9) / 10

	// 订阅者消息大小上限
	maxMessageSize = 8192
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Server struct {
	cfg    *config.Config
	router *Router
	hub    *hub.Hub
	log    *logrus.Entry

	http   *http.Server
	health *http.Server
}

func NewServer(cfg *config.Config, router *Router, h *hub.Hub) *Server {
	s := &Server{
		cfg:    cfg,
		router: router,
		hub:    h,
		log:    utils.Component("server"),
	}

	s.http = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if addr := cfg.HealthAddr(); addr != "" {
		s.health = &http.Server{
			Addr:              addr,
			Handler:           s.HealthHandler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}
	return s
}

// Handler 订阅者入口，/ 与 /ws 都升级为 websocket
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleWS)
	r.Get("/ws", s.handleWS)
	return r
}

// HealthHandler 健康检查与状态查询
func (s *Server) HealthHandler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok\n"))
	})
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(s.router.Status())
	})
	return r
}

// ListenAndServe 阻塞直到服务关闭，正常关闭返回 nil
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}

	if s.health != nil {
		healthLn, err := net.Listen("tcp", s.health.Addr)
		if err != nil {
			ln.Close()
			return err
		}
		go func() {
			s.log.Infof("健康检查监听 %s", s.health.Addr)
			if err := s.health.Serve(healthLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Errorf("健康检查服务异常: %v", err)
			}
		}()
	}

	s.log.Infof("订阅者监听 %s", s.http.Addr)
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.health != nil {
		errs = append(errs, s.health.Shutdown(ctx))
	}
	errs = append(errs, s.http.Shutdown(ctx))
	return errors.Join(errs...)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debugf("websocket 升级失败: %v", err)
		return
	}

	sub := hub.NewSubscriber(s.cfg.SendBuffer)
	s.log.WithFields(logrus.Fields{"subscriber": sub.ID(), "remote": r.RemoteAddr}).Info("订阅者已连接")

	go s.writePump(conn, sub)
	s.router.Join(sub)
	go s.readPump(conn, sub)
}

// readPump 读取订阅者命令，退出时注销订阅者
func (s *Server) readPump(conn *websocket.Conn, sub *hub.Subscriber) {
	defer func() {
		s.router.Leave(sub)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.log.WithField("subscriber", sub.ID()).Warnf("读取失败: %v", err)
			}
			return
		}
		s.router.Dispatch(sub, message)
	}
}

// writePump 发送队列中的事件，每条事件一个文本帧
func (s *Server) writePump(conn *websocket.Conn, sub *hub.Subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-sub.SendChan():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// 订阅者已关闭
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.router.Leave(sub)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.router.Leave(sub)
				return
			}
		}
	}
}
