package server_test

import (
	"encoding/json"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/chatframe-ai/chatframe/citest/testutil"
)

var _ = Describe("Websocket Chat", func() {
	var socket *testutil.ChatSocket

	BeforeEach(func() {
		var err error
		socket, err = testutil.DialChatSocket(testServer.BaseURL)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if socket != nil {
			socket.Close()
		}
	})

	Describe("registration", func() {
		It("should adopt a client-minted session ID", func() {
			sessionID := testutil.RandomSessionID()

			history, err := socket.Register(sessionID)
			Expect(err).NotTo(HaveOccurred())
			Expect(history.SessionID).To(Equal(sessionID))

			var data testutil.HistoryData
			Expect(json.Unmarshal(history.Data, &data)).To(Succeed())
			Expect(data.Messages).To(HaveLen(1))
			Expect(data.Messages[0].Content).To(ContainSubstring("SHOP FLOOR CONNECTIVITY"))
		})

		It("should mint an ID when the client offers a foreign one", func() {
			history, err := socket.Register("not-a-session-id")
			Expect(err).NotTo(HaveOccurred())
			Expect(history.SessionID).NotTo(BeEmpty())
			Expect(history.SessionID).NotTo(Equal("not-a-session-id"))
		})

		It("should refuse messages before registration", func() {
			err := socket.SendText("", "hello wizard")
			Expect(err).NotTo(HaveOccurred())

			frame, err := socket.WaitForFrame("error", 2*time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(frame).NotTo(BeNil())
		})
	})

	Describe("conversation turns", func() {
		It("should stream a full turn", func() {
			sessionID := testutil.RandomSessionID()
			_, err := socket.Register(sessionID)
			Expect(err).NotTo(HaveOccurred())

			Expect(socket.SendText(sessionID, "hello wizard")).To(Succeed())

			received, err := socket.WaitForFrame("message.received", 3*time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(received.SessionID).To(Equal(sessionID))

			response, err := socket.WaitForFrame("message.response", 3*time.Second)
			Expect(err).NotTo(HaveOccurred())

			var payload struct {
				Message testutil.Message `json:"message"`
			}
			Expect(json.Unmarshal(response.Data, &payload)).To(Succeed())
			Expect(payload.Message.Role).To(Equal("assistant"))
			Expect(payload.Message.Content).To(Equal(ackReply))
		})

		It("should stream partial output before the response", func() {
			sessionID := testutil.RandomSessionID()
			_, err := socket.Register(sessionID)
			Expect(err).NotTo(HaveOccurred())

			Expect(socket.SendText(sessionID, "simulate a long answer")).To(Succeed())

			partial, err := socket.WaitForFrame("message.partial", 3*time.Second)
			Expect(err).NotTo(HaveOccurred())

			var data struct {
				Text string `json:"text"`
			}
			Expect(json.Unmarshal(partial.Data, &data)).To(Succeed())
			Expect(data.Text).To(ContainSubstring("telemetry"))

			// Wind the generation down so the next spec starts clean.
			Expect(socket.Send("stop", sessionID, nil)).To(Succeed())
			stoppedFrame, err := socket.WaitForFrame("generation.stopped", 3*time.Second)
			Expect(err).NotTo(HaveOccurred())

			var notice struct {
				Notice string `json:"notice"`
				State  string `json:"state"`
			}
			Expect(json.Unmarshal(stoppedFrame.Data, &notice)).To(Succeed())
			Expect(notice.State).To(Equal("cancelled"))
			Expect(notice.Notice).To(ContainSubstring("stopped by user"))
		})
	})

	Describe("stop frames", func() {
		It("should reject a stop with no generation running", func() {
			sessionID := testutil.RandomSessionID()
			_, err := socket.Register(sessionID)
			Expect(err).NotTo(HaveOccurred())

			Expect(socket.Send("stop", sessionID, nil)).To(Succeed())

			frame, err := socket.WaitForFrame("generation.stop.rejected", 2*time.Second)
			Expect(err).NotTo(HaveOccurred())

			var data struct {
				Reason string `json:"reason"`
			}
			Expect(json.Unmarshal(frame.Data, &data)).To(Succeed())
			Expect(data.Reason).NotTo(BeEmpty())
		})
	})

	Describe("clear frames", func() {
		It("should reset the transcript to the welcome message", func() {
			sessionID := testutil.RandomSessionID()
			_, err := socket.Register(sessionID)
			Expect(err).NotTo(HaveOccurred())

			Expect(socket.SendText(sessionID, "hello wizard")).To(Succeed())
			_, err = socket.WaitForFrame("message.response", 3*time.Second)
			Expect(err).NotTo(HaveOccurred())

			Expect(socket.Send("clear", sessionID, nil)).To(Succeed())

			cleared, err := socket.WaitForFrame("session.cleared", 2*time.Second)
			Expect(err).NotTo(HaveOccurred())

			var data testutil.HistoryData
			Expect(json.Unmarshal(cleared.Data, &data)).To(Succeed())
			Expect(data.Messages).To(HaveLen(1))
			Expect(strings.Contains(data.Messages[0].Content, "SHOP FLOOR CONNECTIVITY")).To(BeTrue())
		})
	})
})
