package docker

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

// DefaultRedisImage is the image started by Up when none is given.
const DefaultRedisImage = "redis:7-alpine"

// DefaultRedisPort is the host port Up binds when none is given.
const DefaultRedisPort = 6379

// Status summarises the ledger containers of a namespace.
type Status string

const (
	StatusRunning  Status = "Running"
	StatusDegraded Status = "Degraded"
	StatusStopped  Status = "Stopped"
	StatusAbsent   Status = "Absent"
)

// DetermineStatus reduces a container set to one Status.
func DetermineStatus(containers []LedgerContainer) Status {
	if len(containers) == 0 {
		return StatusAbsent
	}
	running := 0
	for _, c := range containers {
		if c.State == "running" {
			running++
		}
	}
	switch {
	case running == len(containers):
		return StatusRunning
	case running > 0:
		return StatusDegraded
	default:
		return StatusStopped
	}
}

// LedgerContainer describes one provisioned ledger.
type LedgerContainer struct {
	ID        string
	Name      string
	Namespace string
	Port      int
	State     string
	Created   time.Time
}

// URL is the redis:// address of the ledger from this host.
func (c LedgerContainer) URL() string {
	return RedisURL(c.Port)
}

func describe(c types.Container) LedgerContainer {
	port, _ := strconv.Atoi(c.Labels[LabelRedisPort])
	name := c.ID
	if len(c.Names) > 0 {
		name = strings.TrimPrefix(c.Names[0], "/")
	}
	return LedgerContainer{
		ID:        c.ID,
		Name:      name,
		Namespace: c.Labels[LabelNamespace],
		Port:      port,
		State:     c.State,
		Created:   time.Unix(c.Created, 0),
	}
}

// UpOptions configures Up.
type UpOptions struct {
	Namespace string
	Port      int
	Image     string
}

// Up starts a Redis ledger for the namespace bound to 127.0.0.1:Port.
// A container that already exists for the namespace is an error.
func Up(ctx context.Context, cli *client.Client, opts UpOptions) (*LedgerContainer, error) {
	if opts.Port == 0 {
		opts.Port = DefaultRedisPort
	}
	if opts.Image == "" {
		opts.Image = DefaultRedisImage
	}

	existing, err := List(ctx, cli, opts.Namespace)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, fmt.Errorf("ledger '%s' already provisioned as %s", opts.Namespace, existing[0].Name)
	}
	if !PortBindable(opts.Port) {
		return nil, fmt.Errorf("port %d is already in use on 127.0.0.1", opts.Port)
	}

	if err := ensureImage(ctx, cli, opts.Image); err != nil {
		return nil, err
	}

	name := LedgerContainerName(opts.Namespace)
	labels := BuildLabels(opts.Namespace, GenerateRunID(), ComponentLedgerRedis)
	labels[LabelRedisPort] = strconv.Itoa(opts.Port)

	resp, err := cli.ContainerCreate(ctx, &container.Config{
		Image:  opts.Image,
		Labels: labels,
		// Append-only persistence so credits survive a restart.
		Cmd: []string{"redis-server", "--appendonly", "yes"},
		ExposedPorts: nat.PortSet{
			"6379/tcp": struct{}{},
		},
	}, &container.HostConfig{
		PortBindings: nat.PortMap{
			"6379/tcp": []nat.PortBinding{
				{HostIP: "127.0.0.1", HostPort: strconv.Itoa(opts.Port)},
			},
		},
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyUnlessStopped},
	}, nil, nil, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger container: %w", err)
	}

	if err := cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return nil, fmt.Errorf("failed to start ledger container: %w", err)
	}

	return &LedgerContainer{
		ID:        resp.ID,
		Name:      name,
		Namespace: opts.Namespace,
		Port:      opts.Port,
		State:     "running",
		Created:   time.Now(),
	}, nil
}

func ensureImage(ctx context.Context, cli *client.Client, image string) error {
	if _, _, err := cli.ImageInspectWithRaw(ctx, image); err == nil {
		return nil
	} else if !client.IsErrNotFound(err) {
		return fmt.Errorf("failed to inspect image %s: %w", image, err)
	}

	rc, err := cli.ImagePull(ctx, image, types.ImagePullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", image, err)
	}
	defer rc.Close()
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", image, err)
	}
	return nil
}

// List returns the ledger containers for namespace; empty means all.
func List(ctx context.Context, cli *client.Client, namespace string) ([]LedgerContainer, error) {
	containers, err := cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: LedgerFilter(namespace),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}
	out := make([]LedgerContainer, 0, len(containers))
	for _, c := range containers {
		out = append(out, describe(c))
	}
	return out, nil
}

// Inspect returns the containers of namespace and their combined status.
func Inspect(ctx context.Context, cli *client.Client, namespace string) ([]LedgerContainer, Status, error) {
	found, err := List(ctx, cli, namespace)
	if err != nil {
		return nil, "", err
	}
	return found, DetermineStatus(found), nil
}

// Down stops and removes the ledger containers of namespace, returning the
// names removed. Data inside the container is lost.
func Down(ctx context.Context, cli *client.Client, namespace string) ([]string, error) {
	found, err := List(ctx, cli, namespace)
	if err != nil {
		return nil, err
	}

	timeout := 10
	var removed []string
	for _, c := range found {
		_ = cli.ContainerStop(ctx, c.ID, container.StopOptions{Timeout: &timeout})
		if err := cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true}); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", c.Name, err)
		}
		removed = append(removed, c.Name)
	}
	return removed, nil
}

// PortBindable reports whether port is free on 127.0.0.1.
func PortBindable(port int) bool {
	l, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return false
	}
	l.Close()
	return true
}

// RedisHost is the host that reaches published ports: host.docker.internal
// from inside a container, localhost otherwise.
func RedisHost() string {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return "host.docker.internal"
	}
	return "localhost"
}

// RedisURL is the redis:// address of a ledger published on port.
func RedisURL(port int) string {
	return fmt.Sprintf("redis://%s", net.JoinHostPort(RedisHost(), strconv.Itoa(port)))
}
