// Package collector pulls the measurement CSV files of every cluster member over ssh and scp.
package collector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	scp "github.com/bramvdbogaerde/go-scp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/sync/errgroup"

	"github.com/xiaogangfan/rocketmq/config"
	"github.com/xiaogangfan/rocketmq/log"
)

var (
	ErrNoKey     = errors.New("no ssh key configured")
	ErrNoDataDir = errors.New("no data dir configured")
)

type Options struct {
	KnownHosts  string // known_hosts file; empty accepts any host key
	DialTimeout time.Duration
	Parallelism int
}

type Collector struct {
	membership *config.ClusterMembershipConfig
	localDir   string
	opts       Options
}

func NewCollector(membership *config.ClusterMembershipConfig, localDir string, opts Options) *Collector {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 4
	}
	return &Collector{
		membership: membership,
		localDir:   localDir,
		opts:       opts,
	}
}

func (c *Collector) clientConfig(node config.NodeInfo) (*ssh.ClientConfig, error) {
	if node.RSA_path == "" {
		return nil, fmt.Errorf("node %v: %w", node.NodeId, ErrNoKey)
	}
	pemBytes, err := os.ReadFile(node.RSA_path)
	if err != nil {
		return nil, fmt.Errorf("node %v: reading key: %w", node.NodeId, err)
	}
	signer, err := ssh.ParsePrivateKey(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("node %v: parsing key: %w", node.NodeId, err)
	}
	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if c.opts.KnownHosts != "" {
		hostKeyCallback, err = knownhosts.New(c.opts.KnownHosts)
		if err != nil {
			return nil, err
		}
	}
	return &ssh.ClientConfig{
		User:            node.Usr_name,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.opts.DialTimeout,
	}, nil
}

func (c *Collector) dial(ctx context.Context, node config.NodeInfo) (*ssh.Client, error) {
	cfg, err := c.clientConfig(node)
	if err != nil {
		return nil, err
	}
	d := net.Dialer{Timeout: c.opts.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", node.SshAddr)
	if err != nil {
		return nil, err
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, node.SshAddr, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}

// parseListing keeps the measurement files of an `ls -1` output
func parseListing(out string) []string {
	files := make([]string, 0)
	for _, line := range strings.Split(out, "\n") {
		name := strings.TrimSpace(line)
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		if strings.HasSuffix(name, ".csv") || strings.HasSuffix(name, ".csv.gz") {
			files = append(files, name)
		}
	}
	return files
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func (c *Collector) nodeDir(node config.NodeInfo) string {
	return filepath.Join(c.localDir, node.NodeId.String())
}

// Collect copies the CSV files in the node's data dir into <localDir>/<node id>/ and returns the local paths
func (c *Collector) Collect(ctx context.Context, node config.NodeInfo) ([]string, error) {
	if node.DataDir == "" {
		return nil, fmt.Errorf("node %v: %w", node.NodeId, ErrNoDataDir)
	}
	client, err := c.dial(ctx, node)
	if err != nil {
		return nil, fmt.Errorf("node %v: %w", node.NodeId, err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, err
	}
	out, err := session.Output("ls -1 " + shellQuote(node.DataDir))
	session.Close()
	if err != nil {
		return nil, fmt.Errorf("node %v: listing %s: %w", node.NodeId, node.DataDir, err)
	}
	remoteFiles := parseListing(string(out))
	log.Infof("node %v has %d measurement files in %s", node.NodeId, len(remoteFiles), node.DataDir)

	dir := c.nodeDir(node)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, err
	}
	local := make([]string, 0, len(remoteFiles))
	for _, name := range remoteFiles {
		localPath := filepath.Join(dir, name)
		if err := copyOne(ctx, client, path.Join(node.DataDir, name), localPath); err != nil {
			return local, fmt.Errorf("node %v: copying %s: %w", node.NodeId, name, err)
		}
		local = append(local, localPath)
	}
	return local, nil
}

// copyOne uses its own scp client, an scp session serves a single transfer
func copyOne(ctx context.Context, sshClient *ssh.Client, remotePath, localPath string) error {
	scpClient, err := scp.NewClientBySSH(sshClient)
	if err != nil {
		return err
	}
	file, err := os.Create(localPath)
	if err != nil {
		return err
	}
	defer file.Close()
	return scpClient.CopyFromRemote(ctx, file, remotePath)
}

// CollectAll runs Collect for every cluster member. A failing node does not stop the others.
func (c *Collector) CollectAll(ctx context.Context) error {
	var g errgroup.Group
	g.SetLimit(c.opts.Parallelism)
	nodeIds := c.membership.GetIds()
	errs := make([]error, len(nodeIds))
	for i, id := range nodeIds {
		i := i
		node, ok := c.membership.GetNode(id)
		if !ok {
			continue
		}
		g.Go(func() error {
			files, err := c.Collect(ctx, node)
			if err != nil {
				log.Errorf("collecting from %v failed: %v", node.NodeId, err)
				errs[i] = err
				return nil
			}
			log.Infof("collected %d files from %v", len(files), node.NodeId)
			return nil
		})
	}
	g.Wait()
	return errors.Join(errs...)
}
