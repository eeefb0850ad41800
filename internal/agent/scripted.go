package agent

import (
	"context"
	"io"
	"strings"
	"time"
)

// scriptChunkSize is how many runes a scripted reply streams per write,
// small enough to exercise downstream buffering.
const scriptChunkSize = 24

// ScriptRule pairs a lowercase substring with the reply it triggers.
type ScriptRule struct {
	Match string
	Reply string
}

// ScriptedAgent is a deterministic Agent used when no model credentials are
// configured, and in tests. It picks the first rule whose Match is contained
// in the lowercased message and streams the reply to output in small chunks.
type ScriptedAgent struct {
	Rules    []ScriptRule
	Fallback string
	Delay    time.Duration // pause between chunks; zero streams immediately
}

// NewScriptedAgent returns a ScriptedAgent loaded with the default
// connectivity-wizard script.
func NewScriptedAgent() *ScriptedAgent {
	return &ScriptedAgent{Rules: defaultScript, Fallback: scriptFallback}
}

// Invoke resolves the reply for message and streams it to output. It checks
// ctx between chunks so a cancelled caller stops promptly.
func (s *ScriptedAgent) Invoke(ctx context.Context, message string, output io.Writer) (string, error) {
	reply := s.Fallback
	lowered := strings.ToLower(message)
	for _, rule := range s.Rules {
		if strings.Contains(lowered, rule.Match) {
			reply = rule.Reply
			break
		}
	}

	runes := []rune(reply)
	for at := 0; at < len(runes); at += scriptChunkSize {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		end := at + scriptChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		if output != nil {
			if _, err := io.WriteString(output, string(runes[at:end])); err != nil {
				return "", &InvocationError{Err: err}
			}
		}
		if s.Delay > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(s.Delay):
			}
		}
	}
	return reply, nil
}

var defaultScript = []ScriptRule{
	{
		Match: "hello",
		Reply: "Hello! I am the SFC Wizard. Ask me about Shop Floor Connectivity configurations, protocol adapters, or AWS targets.",
	},
	{
		Match: "protocol",
		Reply: "SFC ships protocol adapters for OPCUA, MODBUS, S7, MQTT, SNMP, PCCC, ADS and REST sources, among others.",
	},
	{
		Match: "target",
		Reply: "Common SFC targets include AWS S3, AWS IoT Core, SiteWise, Timestream, Kinesis and plain MQTT brokers.",
	},
	{
		Match: "opcua",
		Reply: "For an OPCUA source, declare a ProtocolAdapter of type OPCUA, list the node IDs to read under Sources, and wire the source channels to a target such as S3.",
	},
	{
		Match: "config",
		Reply: "An SFC configuration has three core sections: Sources describing where data comes from, Targets describing where it goes, and Schedules tying the two together with a read interval.",
	},
}

const scriptFallback = "I can help with Shop Floor Connectivity: describe the protocol you read from and the AWS target you write to, and I will sketch the configuration."
