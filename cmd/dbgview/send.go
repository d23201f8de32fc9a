package main

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	sendAddr     string
	sendCount    int
	sendInterval time.Duration
	sendSplit    bool
)

var sendCmd = &cobra.Command{
	Use:   "send --udp host:port message...",
	Short: "Send test messages to a UDP listener",
	Long: `Send test messages to a dbgview UDP listener. With --split every message is sent
in two datagrams, which exercises line reassembly.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := net.Dial("udp", sendAddr)
		if err != nil {
			return fmt.Errorf("failed to dial %s: %w", sendAddr, err)
		}
		defer func() { _ = conn.Close() }()

		message := strings.Join(args, " ")
		for i := 0; i < sendCount; i++ {
			if i > 0 && sendInterval > 0 {
				time.Sleep(sendInterval)
			}
			if err := sendMessage(conn, message, sendSplit); err != nil {
				return err
			}
		}
		return nil
	},
}

func sendMessage(conn net.Conn, message string, split bool) error {
	parts := []string{message + "\n"}
	if split && len(message) > 1 {
		half := len(message) / 2
		parts = []string{message[:half], message[half:] + "\n"}
	}
	for _, part := range parts {
		if _, err := conn.Write([]byte(part)); err != nil {
			return fmt.Errorf("failed to send message: %w", err)
		}
	}
	return nil
}

func init() {
	sendCmd.Flags().StringVar(&sendAddr, "udp", "127.0.0.1:2020", "Address of the UDP listener")
	sendCmd.Flags().IntVar(&sendCount, "count", 1, "Number of times to send the message")
	sendCmd.Flags().DurationVar(&sendInterval, "interval", 0, "Pause between messages")
	sendCmd.Flags().BoolVar(&sendSplit, "split", false, "Send each message in two datagrams")
}
