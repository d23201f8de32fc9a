package main

import (
	"bytes"
	"net"
	"testing"
	"time"

	"dbgview/internal/config"

	"github.com/stretchr/testify/require"
)

func TestParseUDP(t *testing.T) {
	sc, err := parseUDP("2020")
	require.NoError(t, err)
	require.Equal(t, config.SourceConfig{Type: config.SourceUDP, Port: 2020}, sc)

	sc, err = parseUDP("127.0.0.1:2020")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:2020", sc.UDPAddr())

	_, err = parseUDP("localhost")
	require.Error(t, err)
}

func TestSourcesFromFlags(t *testing.T) {
	defer func() {
		udpAddrs, files, execs, wsURLs = nil, nil, nil, nil
		follow, usePTY, fromStdin = false, false, false
	}()
	udpAddrs = []string{"2020"}
	files = []string{"app.log"}
	follow = true
	execs = []string{"myservice --verbose -x"}
	usePTY = true
	wsURLs = []string{"ws://host/forward"}
	fromStdin = true

	sources, err := sourcesFromFlags()
	require.NoError(t, err)
	require.Len(t, sources, 5)
	require.Equal(t, config.SourceFile, sources[1].Type)
	require.True(t, sources[1].Follow)
	require.Equal(t, config.SourcePTY, sources[2].Type)
	require.Equal(t, "myservice", sources[2].Command)
	require.Equal(t, []string{"--verbose", "-x"}, sources[2].Args)
	require.Equal(t, config.SourceWebSocket, sources[3].Type)
	require.Equal(t, config.SourceStdin, sources[4].Type)

	execs = []string{"   "}
	_, err = sourcesFromFlags()
	require.Error(t, err)
}

func TestSendMessage_Split(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	conn, err := net.Dial("udp", pc.LocalAddr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, sendMessage(conn, "hello", true))

	buf := make([]byte, 64)
	var got []string
	for i := 0; i < 2; i++ {
		require.NoError(t, pc.SetReadDeadline(time.Now().Add(5*time.Second)))
		n, _, err := pc.ReadFrom(buf)
		require.NoError(t, err)
		got = append(got, string(buf[:n]))
	}
	require.Equal(t, []string{"he", "llo\n"}, got)
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())
	require.Equal(t, "dbgview dev\n", out.String())
}
