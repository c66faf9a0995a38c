package system

import (
	"math"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Sampler polls system load and CPU usage on a background ticker and caches
// them in atomics so the admission path never touches /proc.
type Sampler struct {
	loadBits atomic.Uint64
	cpuBits  atomic.Uint64

	prevTotal atomic.Uint64
	prevIdle  atomic.Uint64

	done chan struct{}
}

func NewSampler(interval time.Duration) *Sampler {
	if interval <= 0 {
		interval = time.Second
	}
	s := &Sampler{done: make(chan struct{})}
	s.loadBits.Store(math.Float64bits(-1))
	s.cpuBits.Store(math.Float64bits(-1))
	s.sample()
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				s.sample()
			case <-s.done:
				return
			}
		}
	}()
	return s
}

func (s *Sampler) Stop() { close(s.done) }

// CurrentLoad is the 1-minute load average, -1 when unavailable.
func (s *Sampler) CurrentLoad() float64 { return math.Float64frombits(s.loadBits.Load()) }

// CurrentCpuUsage is in [0, 1], -1 when unavailable.
func (s *Sampler) CurrentCpuUsage() float64 { return math.Float64frombits(s.cpuBits.Load()) }

func (s *Sampler) sample() {
	if load, err := readLoadAvg(); err == nil {
		s.loadBits.Store(math.Float64bits(load))
	} else {
		log.Debug().Err(err).Msg("[system] load sampling unavailable")
	}
	total, idle, err := readCpuTicks()
	if err != nil {
		log.Debug().Err(err).Msg("[system] cpu sampling unavailable")
		return
	}
	pt, pi := s.prevTotal.Swap(total), s.prevIdle.Swap(idle)
	if pt == 0 || total <= pt {
		return
	}
	busy := float64((total-pt)-(idle-pi)) / float64(total-pt)
	if busy < 0 {
		busy = 0
	}
	s.cpuBits.Store(math.Float64bits(busy))
}

func readLoadAvg() (float64, error) {
	data, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0, os.ErrInvalid
	}
	return strconv.ParseFloat(fields[0], 64)
}

func readCpuTicks() (total, idle uint64, err error) {
	data, err := os.ReadFile("/proc/stat")
	if err != nil {
		return 0, 0, err
	}
	line, _, _ := strings.Cut(string(data), "\n")
	fields := strings.Fields(line)
	if len(fields) < 5 || fields[0] != "cpu" {
		return 0, 0, os.ErrInvalid
	}
	for i, f := range fields[1:] {
		v, perr := strconv.ParseUint(f, 10, 64)
		if perr != nil {
			continue
		}
		total += v
		if i == 3 { // idle column
			idle = v
		}
	}
	return total, idle, nil
}
