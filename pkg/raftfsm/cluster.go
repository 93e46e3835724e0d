package raftfsm

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

// Cluster owns the raft.Raft instance and its on-disk log/stable/snapshot
// stores for one pgraph node: a TCP transport, a file snapshot store, and
// BoltDB-backed log/stable stores, wrapped with the membership and
// leadership operations the administrative surface needs
// (Bootstrap/Join/AddVoter/RemoveServer/GetClusterServers/IsLeader/
// LeaderAddr/Stats).
type Cluster struct {
	nodeID   string
	bindAddr string
	raftDir  string

	raft *raft.Raft
	fsm  *FSM
}

// NewCluster prepares a Cluster for the given node, without starting Raft.
func NewCluster(nodeID, bindAddr, raftDir string, fsm *FSM) *Cluster {
	return &Cluster{nodeID: nodeID, bindAddr: bindAddr, raftDir: raftDir, fsm: fsm}
}

func (c *Cluster) newRaft() (*raft.Raft, *raft.NetworkTransport, error) {
	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(c.nodeID)

	// LAN-tuned timeouts: the hashicorp/raft defaults target WAN
	// deployments and are needlessly conservative for a single-rack
	// graph cluster.
	config.HeartbeatTimeout = 500 * time.Millisecond
	config.ElectionTimeout = 500 * time.Millisecond
	config.CommitTimeout = 50 * time.Millisecond
	config.LeaderLeaseTimeout = 250 * time.Millisecond

	addr, err := net.ResolveTCPAddr("tcp", c.bindAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("raftfsm: resolve bind address: %w", err)
	}
	transport, err := raft.NewTCPTransport(c.bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, nil, fmt.Errorf("raftfsm: create transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(c.raftDir, 2, os.Stderr)
	if err != nil {
		return nil, nil, fmt.Errorf("raftfsm: create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(c.raftDir, "raft-log.db"))
	if err != nil {
		return nil, nil, fmt.Errorf("raftfsm: create log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(c.raftDir, "raft-stable.db"))
	if err != nil {
		return nil, nil, fmt.Errorf("raftfsm: create stable store: %w", err)
	}

	r, err := raft.NewRaft(config, c.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, nil, fmt.Errorf("raftfsm: create raft: %w", err)
	}
	return r, transport, nil
}

// Bootstrap starts Raft and forms a brand-new single-node cluster with this
// node as its only voter.
func (c *Cluster) Bootstrap() error {
	r, transport, err := c.newRaft()
	if err != nil {
		return err
	}
	c.raft = r

	configuration := raft.Configuration{
		Servers: []raft.Server{
			{ID: raft.ServerID(c.nodeID), Address: transport.LocalAddr()},
		},
	}
	if err := c.raft.BootstrapCluster(configuration).Error(); err != nil {
		return fmt.Errorf("raftfsm: bootstrap cluster: %w", err)
	}
	return nil
}

// Join starts Raft on this node without bootstrapping a configuration. The
// node sits idle until the cluster leader calls AddVoter for nodeID —
// typically driven by the administrative membership operations forwarding
// the request to whichever node holds leadership.
func (c *Cluster) Join() error {
	r, _, err := c.newRaft()
	if err != nil {
		return err
	}
	c.raft = r
	return nil
}

// AddVoter adds a new voting member to the cluster. Must be called on the
// current leader.
func (c *Cluster) AddVoter(nodeID, address string) error {
	if c.raft == nil {
		return fmt.Errorf("raftfsm: raft not started")
	}
	if !c.IsLeader() {
		return fmt.Errorf("raftfsm: not the leader, current leader: %s", c.LeaderAddr())
	}
	return c.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(address), 0, 10*time.Second).Error()
}

// RemoveServer removes a member from the cluster. Refuses a change whose
// new voter set would omit the current leader.
func (c *Cluster) RemoveServer(nodeID string) error {
	if c.raft == nil {
		return fmt.Errorf("raftfsm: raft not started")
	}
	if !c.IsLeader() {
		return fmt.Errorf("raftfsm: not the leader")
	}
	if leaderID, err := c.currentLeaderID(); err == nil && string(leaderID) == nodeID {
		return fmt.Errorf("raftfsm: refusing to remove the current leader %s", nodeID)
	}
	return c.raft.RemoveServer(raft.ServerID(nodeID), 0, 10*time.Second).Error()
}

func (c *Cluster) currentLeaderID() (raft.ServerID, error) {
	future := c.raft.GetConfiguration()
	if err := future.Error(); err != nil {
		return "", err
	}
	leaderAddr := c.raft.Leader()
	for _, srv := range future.Configuration().Servers {
		if srv.Address == leaderAddr {
			return srv.ID, nil
		}
	}
	return "", fmt.Errorf("raftfsm: leader not found in configuration")
}

// GetClusterServers returns the current Raft membership.
func (c *Cluster) GetClusterServers() ([]raft.Server, error) {
	if c.raft == nil {
		return nil, fmt.Errorf("raftfsm: raft not started")
	}
	future := c.raft.GetConfiguration()
	if err := future.Error(); err != nil {
		return nil, fmt.Errorf("raftfsm: get configuration: %w", err)
	}
	return future.Configuration().Servers, nil
}

// IsLeader reports whether this node currently holds Raft leadership.
func (c *Cluster) IsLeader() bool {
	return c.raft != nil && c.raft.State() == raft.Leader
}

// LeaderAddr returns the current leader's raft bind address, or "" if
// unknown.
func (c *Cluster) LeaderAddr() string {
	if c.raft == nil {
		return ""
	}
	return string(c.raft.Leader())
}

// Apply submits an encoded Command to the Raft log and waits for it to be
// applied, returning the Summary (or error) the FSM's Apply produced.
func (c *Cluster) Apply(op Op, payload interface{}, timeout time.Duration) (interface{}, error) {
	if c.raft == nil {
		return nil, fmt.Errorf("raftfsm: raft not started")
	}
	data, err := Encode(op, payload)
	if err != nil {
		return nil, err
	}
	future := c.raft.Apply(data, timeout)
	if err := future.Error(); err != nil {
		return nil, fmt.Errorf("raftfsm: apply: %w", err)
	}
	resp := future.Response()
	if err, ok := resp.(error); ok {
		return nil, err
	}
	return resp, nil
}

// Stats returns a snapshot of Raft statistics for the administrative
// database_stats operation.
func (c *Cluster) Stats() map[string]interface{} {
	if c.raft == nil {
		return nil
	}
	stats := map[string]interface{}{
		"state":          c.raft.State().String(),
		"last_log_index": c.raft.LastIndex(),
		"applied_index":  c.raft.AppliedIndex(),
		"leader":         string(c.raft.Leader()),
	}
	if servers, err := c.GetClusterServers(); err == nil {
		stats["peers"] = len(servers)
	}
	return stats
}

// Shutdown stops the Raft instance.
func (c *Cluster) Shutdown() error {
	if c.raft == nil {
		return nil
	}
	return c.raft.Shutdown().Error()
}
