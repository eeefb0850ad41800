package server_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/chatframe-ai/chatframe/citest/testutil"
	"github.com/chatframe-ai/chatframe/internal/agent"
	"github.com/chatframe-ai/chatframe/internal/session"
)

var _ = Describe("Server Endpoints", func() {

	// ==================== System Endpoints ====================
	Describe("System Endpoints", func() {
		Describe("GET /health", func() {
			It("should report healthy unconditionally", func() {
				resp, err := client.Get(ctx, "/health")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(200))

				var body map[string]string
				Expect(resp.JSON(&body)).To(Succeed())
				Expect(body["status"]).To(Equal("healthy"))
				Expect(body["service"]).To(Equal("chatframe"))
			})
		})

		Describe("GET /ready", func() {
			It("should report the agent initialized", func() {
				resp, err := client.Get(ctx, "/ready")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(200))

				var body map[string]string
				Expect(resp.JSON(&body)).To(Succeed())
				Expect(body["status"]).To(Equal("ready"))
				Expect(body["agent"]).To(Equal("initialized"))
			})
		})

		Describe("GET /stats/cache", func() {
			It("should expose cache usage", func() {
				resp, err := client.Get(ctx, "/stats/cache")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(200))

				var stats map[string]interface{}
				Expect(resp.JSON(&stats)).To(Succeed())
				Expect(stats).To(HaveKey("cache_entries"))
				Expect(stats).To(HaveKey("oldest_entry"))
				Expect(stats).To(HaveKey("newest_entry"))
			})
		})
	})

	// ==================== Session Endpoints ====================
	Describe("Session Endpoints", func() {
		Describe("GET /session/{sessionID}", func() {
			It("should return 404 for an unknown session", func() {
				resp, err := client.Get(ctx, "/session/"+testutil.RandomSessionID())
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(404))

				var body testutil.ErrorBody
				Expect(resp.JSON(&body)).To(Succeed())
				Expect(body.Error.Code).To(Equal("NOT_FOUND"))
			})
		})

		Describe("POST /session/{sessionID}/message", func() {
			It("should run a full turn and append both messages", func() {
				sessionID := testutil.RandomSessionID()

				envelope, err := client.SendMessage(ctx, sessionID, "hello wizard")
				Expect(err).NotTo(HaveOccurred())
				Expect(envelope.Message).NotTo(BeNil())
				Expect(envelope.Message.Role).To(Equal("assistant"))
				Expect(envelope.Message.Content).To(Equal(ackReply))
				Expect(envelope.Message.SessionID).To(Equal(sessionID))

				retrieved, err := client.GetSession(ctx, sessionID)
				Expect(err).NotTo(HaveOccurred())
				Expect(retrieved.Messages).To(Equal(2))

				sessions, err := client.ListSessions(ctx)
				Expect(err).NotTo(HaveOccurred())
				ids := make([]string, 0, len(sessions))
				for _, s := range sessions {
					ids = append(ids, s.ID)
				}
				Expect(ids).To(ContainElement(sessionID))
			})

			It("should reject an empty message", func() {
				resp, err := client.Post(ctx, "/session/"+testutil.RandomSessionID()+"/message",
					map[string]string{"text": "   "})
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(400))

				var body testutil.ErrorBody
				Expect(resp.JSON(&body)).To(Succeed())
				Expect(body.Error.Code).To(Equal("INVALID_REQUEST"))
			})

			It("should answer farewells without invoking the wizard", func() {
				sessionID := testutil.RandomSessionID()

				envelope, err := client.SendMessage(ctx, sessionID, "bye")
				Expect(err).NotTo(HaveOccurred())
				Expect(envelope.Message).NotTo(BeNil())
				Expect(envelope.Message.Content).To(ContainSubstring("Thank you for using the SFC Wizard"))
			})
		})

		Describe("GET /session/{sessionID}/history", func() {
			It("should paginate the transcript", func() {
				sessionID := testutil.RandomSessionID()

				for i := 0; i < 3; i++ {
					_, err := client.SendMessage(ctx, sessionID, "hello wizard")
					Expect(err).NotTo(HaveOccurred())
				}

				history, err := client.GetHistory(ctx, sessionID, 1)
				Expect(err).NotTo(HaveOccurred())
				Expect(history.TotalItems).To(Equal(6))
				Expect(history.Page).To(Equal(1))
				Expect(history.PageSize).To(Equal(10))
				Expect(history.Items).To(HaveLen(6))
				Expect(history.Items[0].Role).To(Equal("user"))
				Expect(history.Items[1].Role).To(Equal("assistant"))
			})

			It("should return 404 for an unknown session", func() {
				resp, err := client.Get(ctx, "/session/"+testutil.RandomSessionID()+"/history")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(404))
			})
		})

		Describe("POST /session/{sessionID}/clear", func() {
			It("should reset the transcript to the welcome message", func() {
				sessionID := testutil.RandomSessionID()

				_, err := client.SendMessage(ctx, sessionID, "hello wizard")
				Expect(err).NotTo(HaveOccurred())

				result, err := client.ClearSession(ctx, sessionID)
				Expect(err).NotTo(HaveOccurred())
				Expect(result.SessionID).To(Equal(sessionID))
				Expect(result.Messages).To(HaveLen(1))
				Expect(result.Messages[0].Role).To(Equal("assistant"))
				Expect(result.Messages[0].Content).To(ContainSubstring("SHOP FLOOR CONNECTIVITY"))

				retrieved, err := client.GetSession(ctx, sessionID)
				Expect(err).NotTo(HaveOccurred())
				Expect(retrieved.Messages).To(Equal(1))
			})
		})
	})

	// ==================== Generation Control ====================
	Describe("Generation Control", func() {
		Describe("POST /session/{sessionID}/stop", func() {
			It("should report nothing to stop on an idle session", func() {
				sessionID := testutil.RandomSessionID()
				_, err := client.SendMessage(ctx, sessionID, "hello wizard")
				Expect(err).NotTo(HaveOccurred())

				stopped, err := client.StopGeneration(ctx, sessionID)
				Expect(err).NotTo(HaveOccurred())
				Expect(stopped).To(BeFalse())
			})

			It("should cancel a running generation", func() {
				sessionID := testutil.RandomSessionID()

				turn := make(chan *testutil.MessageEnvelope, 1)
				go func() {
					defer GinkgoRecover()
					envelope, err := client.SendMessage(ctx, sessionID, "simulate a long answer")
					Expect(err).NotTo(HaveOccurred())
					turn <- envelope
				}()

				// The user message lands in the transcript as the generation
				// goes live.
				Eventually(func() int {
					s, err := client.GetSession(ctx, sessionID)
					if err != nil {
						return 0
					}
					return s.Messages
				}, "3s", "10ms").Should(Equal(1))

				Eventually(func() bool {
					stopped, err := client.StopGeneration(ctx, sessionID)
					return err == nil && stopped
				}, "2s", "25ms").Should(BeTrue())

				var envelope *testutil.MessageEnvelope
				Eventually(turn, "5s").Should(Receive(&envelope))
				Expect(envelope.Message).To(BeNil())

				// The stopped turn appended nothing.
				retrieved, err := client.GetSession(ctx, sessionID)
				Expect(err).NotTo(HaveOccurred())
				Expect(retrieved.Messages).To(Equal(1))
			})
		})

		Describe("busy sessions", func() {
			It("should reject a second message while one is generating", func() {
				sessionID := testutil.RandomSessionID()

				turn := make(chan *testutil.MessageEnvelope, 1)
				go func() {
					defer GinkgoRecover()
					envelope, err := client.SendMessage(ctx, sessionID, "simulate a long answer")
					Expect(err).NotTo(HaveOccurred())
					turn <- envelope
				}()

				Eventually(func() int {
					s, err := client.GetSession(ctx, sessionID)
					if err != nil {
						return 0
					}
					return s.Messages
				}, "3s", "10ms").Should(Equal(1))

				resp, err := client.Post(ctx, "/session/"+sessionID+"/message",
					map[string]string{"text": "second request"})
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(409))

				var body testutil.ErrorBody
				Expect(resp.JSON(&body)).To(Succeed())
				Expect(body.Error.Code).To(Equal("SESSION_BUSY"))

				// Release the running turn instead of draining the stream.
				Eventually(func() bool {
					stopped, err := client.StopGeneration(ctx, sessionID)
					return err == nil && stopped
				}, "2s", "25ms").Should(BeTrue())

				var envelope *testutil.MessageEnvelope
				Eventually(turn, "5s").Should(Receive(&envelope))
				Expect(envelope.Message).To(BeNil())
			})
		})

		Describe("generation deadline", func() {
			var slowServer *testutil.TestServer
			var slowClient *testutil.TestClient

			BeforeEach(func() {
				var err error
				slowServer, err = testutil.StartTestServer(
					testutil.WithAgent(&agent.ScriptedAgent{
						Fallback: slowReply,
						Delay:    5 * time.Millisecond,
					}),
					testutil.WithSupervisor(session.SupervisorConfig{
						PollInterval: 20 * time.Millisecond,
						Deadline:     300 * time.Millisecond,
					}),
				)
				Expect(err).NotTo(HaveOccurred())
				slowClient = slowServer.Client()
			})

			AfterEach(func() {
				if slowServer != nil {
					slowServer.Stop()
				}
			})

			It("should abandon generations that exceed the deadline", func() {
				sessionID := testutil.RandomSessionID()

				start := time.Now()
				envelope, err := slowClient.SendMessage(ctx, sessionID, "tell me everything")
				Expect(err).NotTo(HaveOccurred())
				Expect(envelope.Message).To(BeNil())
				Expect(time.Since(start)).To(BeNumerically("<", 3*time.Second))

				// Only the user message made it into the transcript.
				retrieved, err := slowClient.GetSession(ctx, sessionID)
				Expect(err).NotTo(HaveOccurred())
				Expect(retrieved.Messages).To(Equal(1))
			})
		})
	})

	// ==================== Configuration Extraction ====================
	Describe("Configuration Extraction", func() {
		Describe("GET /session/{sessionID}/configs", func() {
			It("should extract fenced JSON documents from assistant turns", func() {
				sessionID := testutil.RandomSessionID()

				_, err := client.SendMessage(ctx, sessionID, "draft a config for me")
				Expect(err).NotTo(HaveOccurred())

				docs, err := client.GetConfigs(ctx, sessionID)
				Expect(err).NotTo(HaveOccurred())
				Expect(docs).To(HaveLen(1))
				Expect(docs[0].Name).To(Equal("Configuration 1"))
				Expect(string(docs[0].Config)).To(ContainSubstring("AWSVersion"))
			})

			It("should return 404 for an unknown session", func() {
				resp, err := client.Get(ctx, "/session/"+testutil.RandomSessionID()+"/configs")
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(404))
			})
		})
	})
})
