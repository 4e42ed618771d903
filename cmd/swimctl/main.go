// Command swimctl is an operator CLI for a running swimd node: it talks to
// the admin gRPC service to inspect membership, trigger a join, force a
// peer dead, or check readiness.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"swimguard/internal/transport"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "swimctl",
		Short: "Inspect and operate a running swimd node",
	}
	cmd.PersistentFlags().StringVar(&target, "node", "127.0.0.1:7946", "address of the node to contact")

	cmd.AddCommand(newMembersCmd(&target))
	cmd.AddCommand(newJoinCmd(&target))
	cmd.AddCommand(newConfirmDeadCmd(&target))
	cmd.AddCommand(newHealthCmd(&target))

	return cmd
}

const dialTimeout = 5 * time.Second

func adminClient(target string) (*transport.AdminClient, func(), error) {
	dialer := transport.NewDialer()
	client, err := dialer.AdminClientFor(target)
	if err != nil {
		return nil, nil, fmt.Errorf("swimctl: dialing %s: %w", target, err)
	}
	return client, dialer.Close, nil
}

func newMembersCmd(target *string) *cobra.Command {
	return &cobra.Command{
		Use:   "members",
		Short: "List every member the node currently knows about",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, closeFn, err := adminClient(*target)
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
			defer cancel()

			snapshot, err := client.GetMembership(ctx)
			if err != nil {
				return fmt.Errorf("swimctl: get membership: %w", err)
			}

			fmt.Printf("self: %s (%s)\n", snapshot.Self.Endpoint, snapshot.Self.UID)
			for _, m := range snapshot.Members {
				fmt.Printf("%-22s uid=%-36s status=%-11s incarnation=%d\n",
					m.Peer.Endpoint, m.Peer.UID, kindName(m.Status.Kind), m.Status.Incarnation)
			}
			return nil
		},
	}
}

func newJoinCmd(target *string) *cobra.Command {
	var peerUID string
	cmd := &cobra.Command{
		Use:   "join ENDPOINT",
		Short: "Tell the node to add a bootstrap peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, closeFn, err := adminClient(*target)
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
			defer cancel()

			_, err = client.Join(ctx, &transport.JoinRequest{
				Peer: transport.WireNode{Endpoint: args[0], UID: peerUID},
			})
			if err != nil {
				return fmt.Errorf("swimctl: join: %w", err)
			}
			fmt.Printf("join accepted for %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&peerUID, "uid", "", "process UID of the peer, if known")
	return cmd
}

func newConfirmDeadCmd(target *string) *cobra.Command {
	var peerUID string
	cmd := &cobra.Command{
		Use:   "confirm-dead ENDPOINT",
		Short: "Force a peer straight to dead",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, closeFn, err := adminClient(*target)
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
			defer cancel()

			reply, err := client.ConfirmDead(ctx, &transport.ConfirmDeadRequest{
				Peer: transport.WireNode{Endpoint: args[0], UID: peerUID},
			})
			if err != nil {
				return fmt.Errorf("swimctl: confirm-dead: %w", err)
			}
			fmt.Printf("applied=%t\n", reply.Applied)
			return nil
		},
	}
	cmd.Flags().StringVar(&peerUID, "uid", "", "process UID of the peer, if known")
	return cmd
}

func newHealthCmd(target *string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Print a coarse liveness summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, closeFn, err := adminClient(*target)
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
			defer cancel()

			status, err := client.Health(ctx)
			if err != nil {
				return fmt.Errorf("swimctl: health: %w", err)
			}
			fmt.Printf("alive=%d suspect=%d unreachable=%d dead=%d local_health=%d protocol_period=%d\n",
				status.AliveCount, status.SuspectCount, status.UnreachableCount, status.DeadCount,
				status.LocalHealth, status.ProtocolPeriod)
			return nil
		},
	}
}

func kindName(k int) string {
	switch k {
	case 0:
		return "alive"
	case 1:
		return "suspect"
	case 2:
		return "unreachable"
	case 3:
		return "dead"
	default:
		return "unknown"
	}
}
