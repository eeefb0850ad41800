package server_test

import (
	"encoding/json"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/chatframe-ai/chatframe/citest/testutil"
)

var _ = Describe("SSE Event Streaming", func() {

	Describe("GET /event", func() {
		It("should return SSE content-type and cache headers", func() {
			req, err := http.NewRequest("GET", testServer.BaseURL+"/event", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Accept", "text/event-stream")

			httpClient := &http.Client{Timeout: 5 * time.Second}
			resp, err := httpClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.Header.Get("Content-Type")).To(HavePrefix("text/event-stream"))
			Expect(resp.Header.Get("Cache-Control")).To(Equal("no-cache"))
		})

		It("should announce the connection", func() {
			sseClient := testServer.SSEClient()
			err := sseClient.Connect(ctx, "/event")
			Expect(err).NotTo(HaveOccurred())
			defer sseClient.Close()

			envelope, err := sseClient.WaitForEnvelope("server.connected", 2*time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(envelope).NotTo(BeNil())
		})

		It("should deliver the events of a conversation turn", func() {
			sessionID := testutil.RandomSessionID()

			sseClient := testServer.SSEClient()
			err := sseClient.Connect(ctx, "/event?sessionID="+sessionID)
			Expect(err).NotTo(HaveOccurred())
			defer sseClient.Close()

			_, err = sseClient.WaitForEnvelope("server.connected", 2*time.Second)
			Expect(err).NotTo(HaveOccurred())

			go func() {
				defer GinkgoRecover()
				_, err := client.SendMessage(ctx, sessionID, "hello wizard")
				Expect(err).NotTo(HaveOccurred())
			}()

			received, err := sseClient.WaitForEnvelope("message.received", 3*time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(received.SessionID).To(Equal(sessionID))

			response, err := sseClient.WaitForEnvelope("message.response", 3*time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(response.SessionID).To(Equal(sessionID))

			var payload struct {
				Message testutil.Message `json:"message"`
			}
			Expect(json.Unmarshal(response.Data, &payload)).To(Succeed())
			Expect(payload.Message.Role).To(Equal("assistant"))
			Expect(payload.Message.Content).To(Equal(ackReply))

			// The intermediate stream events rode the same feed.
			Expect(sseClient.HasEnvelopeType("session.typing")).To(BeTrue())
			Expect(sseClient.HasEnvelopeType("message.stream.start")).To(BeTrue())
			Expect(sseClient.HasEnvelopeType("message.partial")).To(BeTrue())
		})

		It("should scope the feed to the requested session", func() {
			watched := testutil.RandomSessionID()
			other := testutil.RandomSessionID()

			sseClient := testServer.SSEClient()
			err := sseClient.Connect(ctx, "/event?sessionID="+watched)
			Expect(err).NotTo(HaveOccurred())
			defer sseClient.Close()

			_, err = sseClient.WaitForEnvelope("server.connected", 2*time.Second)
			Expect(err).NotTo(HaveOccurred())

			_, err = client.SendMessage(ctx, other, "hello wizard")
			Expect(err).NotTo(HaveOccurred())

			for _, evt := range sseClient.CollectEvents(400 * time.Millisecond) {
				if evt.Type == "heartbeat" {
					continue
				}
				envelope, err := evt.ParseEnvelope()
				Expect(err).NotTo(HaveOccurred())
				Expect(envelope.SessionID).NotTo(Equal(other))
			}
		})
	})
})
