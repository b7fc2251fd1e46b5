package bus

import (
	"fmt"
	"strings"
	"time"

	"github.com/plexcord/connstatus/internal/config"
	"github.com/plexcord/connstatus/internal/pkg/errors"
	"github.com/plexcord/connstatus/internal/pkg/logger"
)

// NewBus creates a new Bus instance based on the configuration. When an
// event log path is configured the bus is wrapped in a LoggedBus.
func NewBus(cfg config.BusConfig, timeout time.Duration, log *logger.Logger) (Bus, error) {
	log = logger.OrDefault(log)

	var b Bus
	switch strings.ToLower(cfg.Type) {
	case "memory", "":
		b = NewMemoryBus().WithLogger(log).WithTimeout(timeout)

	case "kafka":
		brokers := ParseKafkaBrokers(cfg.KafkaBrokers)
		if len(brokers) == 0 {
			return nil, errors.New(errors.CodeValidation, "kafka brokers not configured")
		}

		consumerGroup := cfg.KafkaGroup
		if consumerGroup == "" {
			consumerGroup = "connstatus"
		}

		kb, err := NewKafkaBus(KafkaConfig{
			Brokers:       brokers,
			ConsumerGroup: consumerGroup,
			Timeout:       timeout,
			Logger:        log,
		})
		if err != nil {
			return nil, err
		}
		b = kb

	default:
		return nil, errors.New(errors.CodeValidation, fmt.Sprintf("unknown bus type: %s", cfg.Type))
	}

	if cfg.EventLog == "" {
		return b, nil
	}

	eventLogger, err := NewEventLogger(cfg.EventLog, true)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	return NewLoggedBus(b, eventLogger, log), nil
}
