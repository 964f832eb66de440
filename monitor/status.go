package monitor

import (
	"context"
	"os"
	"runtime"
	"time"

	"live-relay/model"
	"live-relay/utils"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/sirupsen/logrus"
)

// StatusSource 提供当前的连接状态
type StatusSource interface {
	Status() model.Status
}

// Report 一次状态采样
type Report struct {
	Status     model.Status
	RSS        uint64
	CPUPercent float64
	Goroutines int
}

// Monitor 定期记录中继状态和进程资源占用
type Monitor struct {
	source   StatusSource
	interval time.Duration
	proc     *process.Process
	log      *logrus.Entry
}

func New(source StatusSource, interval time.Duration) *Monitor {
	m := &Monitor{
		source:   source,
		interval: interval,
		log:      utils.Component("monitor"),
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		m.log.Warnf("无法读取进程信息: %v", err)
	} else {
		m.proc = proc
	}
	return m
}

// Run 阻塞直到 ctx 结束，interval 不大于 0 时直接返回
func (m *Monitor) Run(ctx context.Context) {
	if m.interval <= 0 {
		return
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.log.WithFields(m.Collect().Fields()).Info("运行状态")
		}
	}
}

func (m *Monitor) Collect() Report {
	r := Report{
		Status:     m.source.Status(),
		Goroutines: runtime.NumGoroutine(),
	}

	if m.proc != nil {
		if mem, err := m.proc.MemoryInfo(); err == nil {
			r.RSS = mem.RSS
		}
		if cpu, err := m.proc.CPUPercent(); err == nil {
			r.CPUPercent = cpu
		}
	}
	return r
}

func (r Report) Fields() logrus.Fields {
	return logrus.Fields{
		"connected":   r.Status.Connected,
		"watching":    r.Status.Watching,
		"subscribers": r.Status.SubscriberCount,
		"rss_mb":      r.RSS / (1 << 20),
		"cpu":         r.CPUPercent,
		"goroutines":  r.Goroutines,
	}
}
