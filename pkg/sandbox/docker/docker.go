package docker

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/nstogner/forge/pkg/domain"
	"github.com/nstogner/forge/pkg/sandbox"
)

const (
	// LabelManager is the label used to identify containers managed by this system.
	LabelManager = "manager"
	// LabelManagerValue is the value of the manager label.
	LabelManagerValue = "forge"
	// LabelWorkspaceID is the label used to identify which workspace a container belongs to.
	LabelWorkspaceID = "workspace-id"
	// DefaultImage is the default sandbox container image.
	DefaultImage = "node:20-alpine"
	// DefaultWorkdir is where workspace files are copied and commands run.
	DefaultWorkdir = "/workspace"
	// DefaultIdleTTL is how long an unused workspace container is kept.
	DefaultIdleTTL = 15 * time.Minute
	// ReapInterval is how often the Reap loop checks for idle containers.
	ReapInterval = 30 * time.Second
)

// dockerAPI is the subset of the Docker client used by the manager.
type dockerAPI interface {
	ContainerList(ctx context.Context, options types.ContainerListOptions) ([]types.Container, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options types.ContainerStartOptions) error
	ContainerRemove(ctx context.Context, containerID string, options types.ContainerRemoveOptions) error
	ContainerExecCreate(ctx context.Context, container string, config types.ExecConfig) (types.IDResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, config types.ExecStartCheck) (types.HijackedResponse, error)
	ContainerExecInspect(ctx context.Context, execID string) (types.ContainerExecInspect, error)
	CopyToContainer(ctx context.Context, containerID, dstPath string, content io.Reader, options types.CopyToContainerOptions) error
	ImageInspectWithRaw(ctx context.Context, imageID string) (types.ImageInspect, []byte, error)
	ImagePull(ctx context.Context, refStr string, options types.ImagePullOptions) (io.ReadCloser, error)
	Close() error
}

// Options configure a Manager.
type Options struct {
	Image   string
	Workdir string
	IdleTTL time.Duration
}

// Manager implements sandbox.Manager with one Docker container per workspace.
type Manager struct {
	client  dockerAPI
	image   string
	workdir string
	idleTTL time.Duration
	now     func() time.Time

	// mu guards the maps below. It is never held across Docker calls.
	mu       sync.Mutex
	lastUsed map[string]time.Time
	released map[string]bool
	starting map[string]*workspaceLock
}

// workspaceLock serializes container creation for one workspace.
type workspaceLock struct {
	mu   sync.Mutex
	refs int
}

// Verify interface compliance.
var _ sandbox.Manager = (*Manager)(nil)

// New creates a new Docker sandbox manager.
func New(opts Options) (*Manager, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return newManager(cli, opts), nil
}

func newManager(api dockerAPI, opts Options) *Manager {
	if opts.Image == "" {
		opts.Image = DefaultImage
	}
	if opts.Workdir == "" {
		opts.Workdir = DefaultWorkdir
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = DefaultIdleTTL
	}
	return &Manager{
		client:   api,
		image:    opts.Image,
		workdir:  opts.Workdir,
		idleTTL:  opts.IdleTTL,
		now:      time.Now,
		lastUsed: make(map[string]time.Time),
		released: make(map[string]bool),
		starting: make(map[string]*workspaceLock),
	}
}

// Run syncs files into the workspace container (creating it on first use)
// and executes command through a login shell in the workdir.
func (m *Manager) Run(ctx context.Context, workspaceID, command string, files []domain.VirtualFile) (*sandbox.Result, error) {
	containerID, err := m.ensureRunning(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("sandbox for workspace %s: %w", workspaceID, err)
	}
	m.touch(workspaceID)
	defer m.touch(workspaceID)

	if len(files) > 0 {
		archive, err := tarFiles(files)
		if err != nil {
			return nil, err
		}
		if err := m.client.CopyToContainer(ctx, containerID, m.workdir, archive, types.CopyToContainerOptions{}); err != nil {
			return nil, fmt.Errorf("copying files: %w", err)
		}
	}

	slog.Debug("sandbox exec", "workspaceID", workspaceID, "command", command)
	exec, err := m.client.ContainerExecCreate(ctx, containerID, types.ExecConfig{
		Cmd:          []string{"sh", "-lc", command},
		WorkingDir:   m.workdir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating exec: %w", err)
	}
	attach, err := m.client.ContainerExecAttach(ctx, exec.ID, types.ExecStartCheck{})
	if err != nil {
		return nil, fmt.Errorf("attaching exec: %w", err)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader); err != nil {
		return nil, fmt.Errorf("reading exec output: %w", err)
	}
	inspect, err := m.client.ContainerExecInspect(ctx, exec.ID)
	if err != nil {
		return nil, fmt.Errorf("inspecting exec: %w", err)
	}

	res := &sandbox.Result{
		Output:   stdout.String() + stderr.String(),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: inspect.ExitCode,
	}
	if res.ExitCode != 0 {
		return res, &sandbox.ExitError{Command: command, Result: res}
	}
	return res, nil
}

// Release marks the workspace for removal on the next reap.
func (m *Manager) Release(ctx context.Context, workspaceID string) error {
	m.mu.Lock()
	m.released[workspaceID] = true
	m.mu.Unlock()
	return nil
}

// Reap periodically removes containers that were released, sat idle past
// the TTL, or belong to workspaces this process never used. Blocks until
// ctx is cancelled.
func (m *Manager) Reap(ctx context.Context) error {
	slog.Info("Sandbox reaper starting", "idleTTL", m.idleTTL)

	ticker := time.NewTicker(ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Sandbox reaper stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := m.reap(ctx); err != nil {
				slog.Error("Reap failed", "error", err)
			}
		}
	}
}

func (m *Manager) reap(ctx context.Context) error {
	containers, err := m.listAllManagedContainers(ctx)
	if err != nil {
		return fmt.Errorf("listing managed containers: %w", err)
	}
	now := m.now()
	for _, c := range containers {
		id := c.Labels[LabelWorkspaceID]
		m.mu.Lock()
		last, known := m.lastUsed[id]
		released := m.released[id]
		m.mu.Unlock()

		if !known {
			// Left over from an earlier process.
			last = time.Unix(c.Created, 0)
		}
		if !released && now.Sub(last) < m.idleTTL {
			continue
		}
		slog.Info("Removing sandbox", "workspaceID", id, "released", released)
		if err := m.client.ContainerRemove(ctx, c.ID, types.ContainerRemoveOptions{Force: true}); err != nil {
			slog.Warn("Failed to remove container", "id", c.ID, "error", err)
			continue
		}
		m.mu.Lock()
		delete(m.lastUsed, id)
		delete(m.released, id)
		m.mu.Unlock()
	}
	return nil
}

// Close releases the Docker client resources.
func (m *Manager) Close() error {
	return m.client.Close()
}

// --- internal helpers ---

func (m *Manager) touch(workspaceID string) {
	m.mu.Lock()
	m.lastUsed[workspaceID] = m.now()
	delete(m.released, workspaceID)
	m.mu.Unlock()
}

// ensureRunning returns the id of the workspace's running container,
// starting or creating it as needed.
func (m *Manager) ensureRunning(ctx context.Context, workspaceID string) (string, error) {
	unlock := m.lockWorkspace(workspaceID)
	defer unlock()

	containers, err := m.listContainers(ctx, workspaceID)
	if err != nil {
		return "", fmt.Errorf("listing containers: %w", err)
	}
	if len(containers) > 0 {
		c := containers[0]
		if c.State != "running" {
			if err := m.client.ContainerStart(ctx, c.ID, types.ContainerStartOptions{}); err != nil {
				return "", fmt.Errorf("starting container: %w", err)
			}
		}
		return c.ID, nil
	}
	return m.createAndStart(ctx, workspaceID)
}

// lockWorkspace blocks until the caller holds the workspace's creation lock
// and returns the function that releases it.
func (m *Manager) lockWorkspace(workspaceID string) func() {
	m.mu.Lock()
	l, ok := m.starting[workspaceID]
	if !ok {
		l = &workspaceLock{}
		m.starting[workspaceID] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(m.starting, workspaceID)
		}
		m.mu.Unlock()
	}
}

// createAndStart creates a new sandbox container and starts it.
func (m *Manager) createAndStart(ctx context.Context, workspaceID string) (string, error) {
	if err := m.ensureImage(ctx); err != nil {
		return "", err
	}

	cfg := &container.Config{
		Image:      m.image,
		Cmd:        []string{"sleep", "infinity"},
		WorkingDir: m.workdir,
		Labels: map[string]string{
			LabelManager:     LabelManagerValue,
			LabelWorkspaceID: workspaceID,
		},
	}

	resp, err := m.client.ContainerCreate(ctx, cfg, &container.HostConfig{}, nil, nil, m.containerName(workspaceID))
	if err != nil {
		return "", fmt.Errorf("creating container: %w", err)
	}
	if err := m.client.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		return "", fmt.Errorf("starting container: %w", err)
	}
	slog.Info("Sandbox started", "workspaceID", workspaceID, "container", resp.ID)
	return resp.ID, nil
}

func (m *Manager) ensureImage(ctx context.Context) error {
	_, _, err := m.client.ImageInspectWithRaw(ctx, m.image)
	if err == nil {
		return nil
	}
	if !client.IsErrNotFound(err) {
		return fmt.Errorf("inspecting image %s: %w", m.image, err)
	}
	slog.Info("Pulling sandbox image", "image", m.image)
	rc, err := m.client.ImagePull(ctx, m.image, types.ImagePullOptions{})
	if err != nil {
		return fmt.Errorf("pulling image %s: %w", m.image, err)
	}
	defer rc.Close()
	// The pull only completes once the progress stream is drained.
	_, err = io.Copy(io.Discard, rc)
	return err
}

func (m *Manager) containerName(workspaceID string) string {
	return "forge-sandbox-" + workspaceID
}

func (m *Manager) listContainers(ctx context.Context, workspaceID string) ([]types.Container, error) {
	return m.client.ContainerList(ctx, types.ContainerListOptions{
		All: true,
		Filters: filters.NewArgs(
			filters.Arg("label", LabelManager+"="+LabelManagerValue),
			filters.Arg("label", LabelWorkspaceID+"="+workspaceID),
		),
	})
}

func (m *Manager) listAllManagedContainers(ctx context.Context) ([]types.Container, error) {
	return m.client.ContainerList(ctx, types.ContainerListOptions{
		All: true,
		Filters: filters.NewArgs(
			filters.Arg("label", LabelManager+"="+LabelManagerValue),
		),
	})
}

// tarFiles packs the workspace snapshot in the archive format accepted by
// CopyToContainer.
func tarFiles(files []domain.VirtualFile) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	dirs := map[string]bool{}
	for _, f := range files {
		name := strings.TrimLeft(path.Clean("/"+f.Path), "/")
		var parents []string
		for dir := path.Dir(name); dir != "." && !dirs[dir]; dir = path.Dir(dir) {
			dirs[dir] = true
			parents = append(parents, dir)
		}
		// Outermost directory first.
		for i := len(parents) - 1; i >= 0; i-- {
			if err := tw.WriteHeader(&tar.Header{Typeflag: tar.TypeDir, Name: parents[i] + "/", Mode: 0o755}); err != nil {
				return nil, fmt.Errorf("archiving %s: %w", parents[i], err)
			}
		}
		hdr := &tar.Header{
			Typeflag: tar.TypeReg,
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(f.Content)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, fmt.Errorf("archiving %s: %w", name, err)
		}
		if _, err := io.WriteString(tw, f.Content); err != nil {
			return nil, fmt.Errorf("archiving %s: %w", name, err)
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}
