//go:build linux

// Package capture runs a fanout group of TPACKET_V3 rings on one
// interface and forwards every captured packet to a handler, a pcap
// file, or both.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/bpf"

	"github.com/sofiworker/afring/link"
	"github.com/sofiworker/afring/ring"
	"github.com/sofiworker/afring/tpacket"
)

// Fanout 策略名，对应内核的 PACKET_FANOUT 模式。
const (
	FanoutHash = "hash"
	FanoutLB   = "lb"
	FanoutCPU  = "cpu"
)

// Config 捕获配置。
type Config struct {
	Interface string `mapstructure:"interface"` // 要捕获的网卡
	Workers   int    `mapstructure:"workers"`   // fanout 组内 ring 数量，默认 CPU 数
	Fanout    string `mapstructure:"fanout"`    // hash/lb/cpu，默认 hash

	// Ring 调优，零值使用内核 ring 默认
	BlockSize     uint32        `mapstructure:"block_size"`
	NumBlocks     uint32        `mapstructure:"num_blocks"`
	FrameSize     uint32        `mapstructure:"frame_size"`
	RetireTimeout time.Duration `mapstructure:"retire_timeout"`

	Promiscuous bool   `mapstructure:"promiscuous"` // 混杂模式
	SnapLen     uint32 `mapstructure:"snap_len"`    // pcap 截获长度

	OutputPath string    `mapstructure:"output_path"` // pcap 输出文件路径
	Writer     io.Writer `mapstructure:"-"`           // 自定义输出，优先级高于 OutputPath

	// SaturationEvery 周期性采样 ring 饱和度并记录日志，0 关闭
	SaturationEvery time.Duration `mapstructure:"saturation_every"`

	Filter  []bpf.RawInstruction `mapstructure:"-"` // 预编译 BPF 过滤器
	Handler func(Packet)         `mapstructure:"-"` // 每包回调

	Log LogConfig `mapstructure:"log"`
}

// Packet 是交给 Handler 的单个报文。Data 借用 ring 的共享内存，
// 仅在回调期间有效。
type Packet struct {
	Data      []byte
	Timestamp time.Time
	Length    int // 线上长度
	RXHash    uint32
	VlanTCI   uint32
}

// DefaultConfig 返回一个混杂模式开启、hash fanout 的默认配置。
func DefaultConfig(iface string) Config {
	return Config{
		Interface:   iface,
		Fanout:      FanoutHash,
		Promiscuous: true,
		SnapLen:     65535,
	}
}

// blockSource is one ring of the fanout group, swappable in tests.
type blockSource interface {
	RecvBlock(ctx context.Context) (*ring.Block, error)
	BufferSaturationThreshold(stepPercent uint8) uint8
	Close() error
}

var (
	openRing = func(s ring.Settings) (blockSource, error) {
		return ring.AsyncFromSettings(s)
	}
	lookupLink = link.ByName
)

type Capture struct {
	cfg      Config
	sources  []blockSource
	writer   packetWriter
	writeMu  sync.Mutex
	log      *zap.Logger
	closeFns []func() error
}

// New 创建捕获器并建好整个 fanout 组，未启动读取，需调用 Run。
func New(cfg Config) (*Capture, error) {
	cfg = normalizeConfig(cfg)

	if cfg.Interface == "" {
		return nil, fmt.Errorf("capture: interface required")
	}
	mode, err := fanoutMode(cfg.Fanout)
	if err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	l, err := lookupLink(cfg.Interface)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	if !link.IsUp(*l) {
		logger.Warn("interface is down, capture will stay silent",
			zap.String("interface", l.Name),
			zap.String("oper_state", l.OperState))
	}

	settings := ringSettings(cfg, mode)

	var (
		sources  []blockSource
		closeFns []func() error
	)
	for i := 0; i < cfg.Workers; i++ {
		src, err := openRing(settings)
		if err != nil {
			closeAll(closeFns)
			return nil, fmt.Errorf("capture: ring %d on %s: %w", i, cfg.Interface, err)
		}
		sources = append(sources, src)
		closeFns = append(closeFns, src.Close)
	}

	writer, err := buildWriter(cfg)
	if err != nil {
		closeAll(closeFns)
		return nil, err
	}
	if writer != nil {
		closeFns = append(closeFns, writer.Close)
	}

	logger.Info("capture ready",
		zap.String("interface", cfg.Interface),
		zap.Int("workers", cfg.Workers),
		zap.String("fanout", cfg.Fanout))

	return &Capture{
		cfg:      cfg,
		sources:  sources,
		writer:   writer,
		log:      logger,
		closeFns: closeFns,
	}, nil
}

// Run 启动所有 worker，直到 ctx 取消或发生错误。
func (c *Capture) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, len(c.sources))
	var wg sync.WaitGroup

	for i, src := range c.sources {
		i, src := i, src
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.captureLoop(ctx, src, i); err != nil {
				select {
				case errCh <- err:
				default:
				}
				cancel()
			}
		}()
	}

	if c.cfg.SaturationEvery > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.saturationLoop(ctx)
		}()
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			_ = c.Close()
			return err
		}
	}
	return c.Close()
}

func (c *Capture) captureLoop(ctx context.Context, src blockSource, worker int) error {
	for {
		blk, err := src.RecvBlock(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("capture: worker %d: %w", worker, err)
		}

		it := blk.ConsumingIter()
		for it.Next() {
			if err := c.emit(it.Packet()); err != nil {
				it.Close()
				return fmt.Errorf("capture: worker %d: %w", worker, err)
			}
		}
		it.Close()
	}
}

func (c *Capture) emit(pkt ring.RawPacket) error {
	hdr := pkt.Header()
	ts := time.Unix(int64(hdr.Sec), int64(hdr.Nsec)).UTC()

	if c.cfg.Handler != nil {
		c.cfg.Handler(Packet{
			Data:      pkt.Payload(),
			Timestamp: ts,
			Length:    int(hdr.Len),
			RXHash:    hdr.Hv1.RXHash,
			VlanTCI:   hdr.Hv1.VlanTCI,
		})
	}

	if c.writer != nil {
		c.writeMu.Lock()
		err := c.writer.WritePacket(pkt.Payload(), ts, hdr.Len)
		c.writeMu.Unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Capture) saturationLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.SaturationEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for i, src := range c.sources {
				c.log.Debug("ring saturation",
					zap.Int("worker", i),
					zap.Uint8("percent", src.BufferSaturationThreshold(10)))
			}
		}
	}
}

// Close 关闭所有 ring 与输出。
func (c *Capture) Close() error {
	closeAll(c.closeFns)
	c.closeFns = nil
	return nil
}

func normalizeConfig(cfg Config) Config {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Fanout == "" {
		cfg.Fanout = FanoutHash
	}
	if cfg.SnapLen == 0 {
		cfg.SnapLen = 65535
	}
	return cfg
}

func fanoutMode(name string) (int, error) {
	switch name {
	case FanoutHash:
		return tpacket.FanoutHash, nil
	case FanoutLB:
		return tpacket.FanoutLB, nil
	case FanoutCPU:
		return tpacket.FanoutCPU, nil
	default:
		return 0, fmt.Errorf("capture: unknown fanout mode %q", name)
	}
}

func ringSettings(cfg Config, mode int) ring.Settings {
	s := ring.DefaultSettings()
	s.IfName = cfg.Interface
	s.FanoutMode = mode
	s.Promiscuous = cfg.Promiscuous
	s.Filter = cfg.Filter
	if cfg.BlockSize > 0 {
		s.Req.BlockSize = cfg.BlockSize
	}
	if cfg.NumBlocks > 0 {
		s.Req.BlockNr = cfg.NumBlocks
	}
	if cfg.FrameSize > 0 {
		s.Req.FrameSize = cfg.FrameSize
	}
	if cfg.RetireTimeout > 0 {
		s.Req.RetireBlkTov = uint32(cfg.RetireTimeout / time.Millisecond)
	}
	return s
}

func closeAll(fns []func() error) {
	for _, fn := range fns {
		_ = fn()
	}
}
