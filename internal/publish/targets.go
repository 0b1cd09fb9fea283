package publish

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/DeafMist/festival-radar/backend/internal/config"
	"github.com/DeafMist/festival-radar/backend/internal/elasticsearch"
)

// FromConfig builds the publisher for the configured targets. The returned
// close function releases the broker connections.
func FromConfig(ctx context.Context, cfg config.Publish, common config.Common, log *slog.Logger) (*Publisher, func(), error) {
	var (
		dests   []Destination
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	for _, target := range cfg.Targets {
		switch target {
		case "file":
			dests = append(dests, File{Dir: cfg.OutputDir})
		case "elasticsearch":
			es, err := elasticsearch.New(common.ElasticsearchAddr, common.ElasticsearchIndex, log)
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			dests = append(dests, NewSearch(es, log))
		case "s3":
			client, err := NewS3Client(ctx, cfg.S3Region, cfg.S3Endpoint)
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			dests = append(dests, NewS3(client, cfg.S3Bucket, cfg.S3Prefix))
		case "kafka":
			w := NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaNoticeTopic)
			closers = append(closers, func() { _ = w.Close() })
			dests = append(dests, NewKafka(w))
		case "nats":
			nc, err := ConnectNATS(cfg.NATSURL)
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			closers = append(closers, nc.Close)
			dests = append(dests, NewNATS(nc, cfg.NATSSubject))
		default:
			closeAll()
			return nil, nil, fmt.Errorf("unknown publish target %q", target)
		}
	}
	return New(log, dests...), closeAll, nil
}
