package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/septivank/youtilitics-worker/internal/mq"
)

func newRefreshCommand() *cobra.Command {
	var (
		url         string
		exchange    string
		routingKey  string
		requestedBy string
	)

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Ask a running worker to poll now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if url == "" {
				return fmt.Errorf("RabbitMQ URL is required; set RABBITMQ_URL or pass --url")
			}

			conn, err := mq.Dial(url)
			if err != nil {
				return err
			}
			defer conn.Close()

			publisher, err := mq.NewPublisher(conn, exchange, zap.NewNop())
			if err != nil {
				return err
			}
			defer publisher.Close()

			req := mq.RefreshRequest{
				RequestID:   uuid.NewString(),
				RequestedBy: requestedBy,
				RequestedAt: time.Now().UTC(),
			}
			if err := publisher.PublishRefreshRequest(cmd.Context(), req, routingKey); err != nil {
				return err
			}

			fmt.Printf("refresh requested: request_id=%s\n", req.RequestID)
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", os.Getenv("RABBITMQ_URL"), "RabbitMQ URL")
	cmd.Flags().StringVar(&exchange, "exchange", envOr("RABBITMQ_CONTROL_EXCHANGE", "youtilitics.control.exchange"), "control exchange")
	cmd.Flags().StringVar(&routingKey, "routing-key", envOr("RABBITMQ_REFRESH_ROUTING_KEY", "coordinator.refresh.requested"), "refresh routing key")
	cmd.Flags().StringVar(&requestedBy, "requested-by", "ytctl", "requester recorded in the worker log")
	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
