package server_test

import (
	"bufio"
	"context"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/agentcore/server/pkg/types"
)

var _ = Describe("SSE event streaming", func() {
	var sessionID string

	BeforeEach(func() {
		sess, err := client.CreateSession(ctx, "sse session")
		Expect(err).NotTo(HaveOccurred())
		sessionID = sess.ID
	})

	AfterEach(func() {
		client.DeleteSession(ctx, sessionID)
	})

	It("sets the event-stream content type", func() {
		reqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		resp, err := client.Get(reqCtx, "/event?session_id="+sessionID)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		Expect(resp.Header.Get("Content-Type")).To(HavePrefix("text/event-stream"))
		Expect(resp.Header.Get("Cache-Control")).To(Equal("no-cache"))
	})

	It("replays a backlog event appended before the subscriber connects", func() {
		_, err := testServer.Store.AppendEvent(ctx, &types.Event{
			SessionID: sessionID,
			Ts:        1,
			Type:      types.EventFinal,
			Payload:   []byte(`{"text":"hello from the backlog"}`),
		})
		Expect(err).NotTo(HaveOccurred())

		reqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		resp, err := client.Get(reqCtx, "/event?session_id="+sessionID)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		var body strings.Builder
		for i := 0; i < 8 && scanner.Scan(); i++ {
			body.WriteString(scanner.Text())
			body.WriteString("\n")
		}

		Expect(body.String()).To(ContainSubstring("event: connected"))
		Expect(body.String()).To(ContainSubstring("event: event"))
		Expect(body.String()).To(ContainSubstring("hello from the backlog"))
	})

	It("requires session_id", func() {
		reqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		resp, err := client.Get(reqCtx, "/event")
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(400))
	})
})
