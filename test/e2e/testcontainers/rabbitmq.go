// Package testcontainers starts the PostgreSQL and RabbitMQ containers the
// end-to-end suites run against.
package testcontainers

import (
	"context"
	"fmt"
	"net/url"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// RabbitMQConfig describes the broker alert events are published to.
type RabbitMQConfig struct {
	// User defaults to guest
	User string
	// Password defaults to guest
	Password string
	// VHost defaults to gridloss, so suites never share the default vhost
	VHost string
	// ContainerName is optional
	ContainerName string
}

func (c *RabbitMQConfig) withDefaults() *RabbitMQConfig {
	out := RabbitMQConfig{}
	if c != nil {
		out = *c
	}
	if out.User == "" {
		out.User = "guest"
	}
	if out.Password == "" {
		out.Password = "guest"
	}
	if out.VHost == "" {
		out.VHost = "gridloss"
	}
	return &out
}

// RabbitMQ is a running broker and the AMQP URL of its vhost.
type RabbitMQ struct {
	testcontainers.Container
	URL string
}

// StartRabbitMQ starts a RabbitMQ container and waits until it accepts AMQP
// connections.
func StartRabbitMQ(ctx context.Context, config *RabbitMQConfig) (*RabbitMQ, error) {
	config = config.withDefaults()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "rabbitmq:3-alpine",
			ExposedPorts: []string{"5672/tcp"},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("5672/tcp"),
				wait.ForLog("Server startup complete"),
			),
			Env: map[string]string{
				"RABBITMQ_DEFAULT_USER":  config.User,
				"RABBITMQ_DEFAULT_PASS":  config.Password,
				"RABBITMQ_DEFAULT_VHOST": config.VHost,
			},
			Name: config.ContainerName,
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start RabbitMQ container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		if termErr := container.Terminate(ctx); termErr != nil {
			return nil, fmt.Errorf("failed to get container host: %w (cleanup error: %w)", err, termErr)
		}
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5672")
	if err != nil {
		if termErr := container.Terminate(ctx); termErr != nil {
			return nil, fmt.Errorf("failed to get container port: %w (cleanup error: %w)", err, termErr)
		}
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(config.User, config.Password),
		Host:   fmt.Sprintf("%s:%s", host, port.Port()),
		Path:   "/" + config.VHost,
	}

	return &RabbitMQ{Container: container, URL: u.String()}, nil
}
