package metriclog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/Borislavv/traffic-governor/pkg/clock"
	"github.com/Borislavv/traffic-governor/pkg/config"
	"github.com/Borislavv/traffic-governor/pkg/node"
	"github.com/rs/zerolog/log"
	gotilsconv "github.com/savsgio/gotils/strconv"
	"golang.org/x/time/rate"
)

// Writer appends one CSV line per resource per elapsed second that recorded
// any activity (seconds whose counters are all zero are skipped):
//
//	timestamp|localDate|resource|pass|block|success|exception|rt|occupiedPass|concurrency
//
// Failures never propagate to admission paths; write errors are logged at a
// bounded rate.
type Writer struct {
	tree *node.Tree
	clk  clock.Clock
	cfg  config.MetricLog

	mu        sync.Mutex
	file      *os.File
	size      int64
	lastFetch map[string]int64

	errLimiter *rate.Limiter
}

func NewWriter(tree *node.Tree, clk clock.Clock, cfg config.MetricLog) *Writer {
	if clk == nil {
		clk = clock.Default()
	}
	return &Writer{
		tree:       tree,
		clk:        clk,
		cfg:        cfg,
		lastFetch:  make(map[string]int64),
		errLimiter: rate.NewLimiter(rate.Every(10*time.Second), 1),
	}
}

// Run flushes on the configured interval until ctx is cancelled.
func (w *Writer) Run(ctx context.Context) {
	t := time.NewTicker(time.Duration(w.cfg.FlushIntervalMs) * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			w.Flush()
		case <-ctx.Done():
			w.close()
			return
		}
	}
}

// Flush writes every resource's freshly completed seconds.
func (w *Writer) Flush() {
	currentSecond := w.clk.CurrentTimeMillis()
	currentSecond -= currentSecond % 1000

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, cn := range w.tree.ClusterNodes() {
		resource := cn.ResourceName()
		last := w.lastFetch[resource]
		for _, item := range cn.MinuteDetails() {
			if item.Timestamp <= last || item.Timestamp >= currentSecond {
				continue
			}
			if item.Pass == 0 && item.Block == 0 && item.Success == 0 && item.Exception == 0 && item.Rt == 0 && item.OccupiedPass == 0 {
				continue
			}
			w.writeLine(resource, item.Timestamp, item.Pass, item.Block, item.Success, item.Exception, item.Rt, item.OccupiedPass, cn.CurThreadNum())
			if item.Timestamp > w.lastFetch[resource] {
				w.lastFetch[resource] = item.Timestamp
			}
		}
	}
}

func (w *Writer) writeLine(resource string, ts, pass, block, success, exception, rt, occupied, concurrency int64) {
	f, err := w.ensureFile()
	if err != nil {
		w.reportErr(err)
		return
	}
	localDate := time.UnixMilli(ts).Format("2006-01-02 15:04:05")
	line := strconv.FormatInt(ts, 10) + "|" + localDate + "|" + resource + "|" +
		strconv.FormatInt(pass, 10) + "|" +
		strconv.FormatInt(block, 10) + "|" +
		strconv.FormatInt(success, 10) + "|" +
		strconv.FormatInt(exception, 10) + "|" +
		strconv.FormatInt(rt, 10) + "|" +
		strconv.FormatInt(occupied, 10) + "|" +
		strconv.FormatInt(concurrency, 10) + "\n"
	n, err := f.Write(gotilsconv.S2B(line))
	if err != nil {
		w.reportErr(err)
		return
	}
	w.size += int64(n)
	if w.size >= w.cfg.MaxFileBytes {
		w.rotate()
	}
}

func (w *Writer) ensureFile() (*os.File, error) {
	if w.file != nil {
		return w.file, nil
	}
	if err := os.MkdirAll(w.cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create metric log dir: %w", err)
	}
	path := filepath.Join(w.cfg.Dir, "governor-metrics.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open metric log: %w", err)
	}
	if st, serr := f.Stat(); serr == nil {
		w.size = st.Size()
	}
	w.file = f
	return f, nil
}

func (w *Writer) rotate() {
	path := w.file.Name()
	_ = w.file.Close()
	w.file = nil
	w.size = 0
	rotated := path + "." + time.UnixMilli(w.clk.CurrentTimeMillis()).Format("20060102-150405")
	if err := os.Rename(path, rotated); err != nil {
		w.reportErr(fmt.Errorf("rotate metric log: %w", err))
	}
}

func (w *Writer) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
	}
}

func (w *Writer) reportErr(err error) {
	if w.errLimiter.Allow() {
		log.Warn().Err(err).Msg("[metric-log] write degraded")
	}
}
