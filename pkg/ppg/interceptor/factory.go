package interceptor

import (
	"errors"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/logging"

	"github.com/thesyncim/ppg/pkg/ppg"
)

// FactoryOption configures the PPGInterceptorFactory.
type FactoryOption func(*PPGInterceptorFactory) error

// PPGInterceptorFactory creates a PPGInterceptor for each PeerConnection.
type PPGInterceptorFactory struct {
	config         ppg.Config
	reportInterval time.Duration
	streamTimeout  time.Duration
	senderSSRC     uint32
	onEstimate     func(ssrc uint32, est ppg.PublishedEstimate)
	loggerFactory  logging.LoggerFactory
}

// WithPipelineConfig sets the estimation pipeline configuration.
// Default: ppg.DefaultConfig()
func WithPipelineConfig(config ppg.Config) FactoryOption {
	return func(f *PPGInterceptorFactory) error {
		f.config = config
		return nil
	}
}

// WithFactoryReportInterval sets how often reports are sent.
// Default: 1 second
func WithFactoryReportInterval(interval time.Duration) FactoryOption {
	return func(f *PPGInterceptorFactory) error {
		if interval <= 0 {
			return errors.New("report interval must be positive")
		}
		f.reportInterval = interval
		return nil
	}
}

// WithFactoryStreamTimeout sets how long silent streams are kept.
// Default: 5 seconds
func WithFactoryStreamTimeout(timeout time.Duration) FactoryOption {
	return func(f *PPGInterceptorFactory) error {
		if timeout <= 0 {
			return errors.New("stream timeout must be positive")
		}
		f.streamTimeout = timeout
		return nil
	}
}

// WithFactorySenderSSRC sets the sender SSRC of report packets.
func WithFactorySenderSSRC(ssrc uint32) FactoryOption {
	return func(f *PPGInterceptorFactory) error {
		f.senderSSRC = ssrc
		return nil
	}
}

// WithFactoryOnEstimate sets a callback invoked for each published estimate
// of every interceptor the factory creates.
func WithFactoryOnEstimate(fn func(ssrc uint32, est ppg.PublishedEstimate)) FactoryOption {
	return func(f *PPGInterceptorFactory) error {
		f.onEstimate = fn
		return nil
	}
}

// WithLoggerFactory sets the pion logger factory.
func WithLoggerFactory(lf logging.LoggerFactory) FactoryOption {
	return func(f *PPGInterceptorFactory) error {
		if lf == nil {
			return errors.New("logger factory must not be nil")
		}
		f.loggerFactory = lf
		return nil
	}
}

// NewPPGInterceptorFactory creates a factory for PPGInterceptor instances.
//
// Example:
//
//	factory, err := NewPPGInterceptorFactory(
//	    WithFactoryReportInterval(500*time.Millisecond),
//	)
//	if err != nil {
//	    return err
//	}
//	registry.Add(factory)
func NewPPGInterceptorFactory(opts ...FactoryOption) (*PPGInterceptorFactory, error) {
	f := &PPGInterceptorFactory{
		config:         ppg.DefaultConfig(),
		reportInterval: defaultReportInterval,
		streamTimeout:  defaultStreamTimeout,
		loggerFactory:  logging.NewDefaultLoggerFactory(),
	}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// NewInterceptor creates a PPGInterceptor for a PeerConnection.
func (f *PPGInterceptorFactory) NewInterceptor(id string) (interceptor.Interceptor, error) {
	opts := []InterceptorOption{
		WithReportInterval(f.reportInterval),
		WithStreamTimeout(f.streamTimeout),
		WithSenderSSRC(f.senderSSRC),
		WithLogger(f.loggerFactory.NewLogger("ppg")),
	}
	if f.onEstimate != nil {
		opts = append(opts, WithOnEstimate(f.onEstimate))
	}

	i := NewPPGInterceptor(f.config, opts...)
	if id != "" {
		i.log.Debugf("created PPG interceptor for %s", id)
	}
	return i, nil
}
