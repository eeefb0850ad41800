package session

import (
	"fmt"
	"strings"
	"time"
)

// WelcomeText seeds every fresh or cleared conversation.
const WelcomeText = `🏭 **AWS SHOP FLOOR CONNECTIVITY (SFC) WIZARD**

Specialized assistant for industrial data connectivity to AWS

💾 **Session Persistence**: Your conversation is automatically saved and will persist for 60 minutes even if you refresh the page or close the browser tab.

🎯 **I can help you with:**
• 🔍 Debug existing SFC configurations
• 🛠️ Create new SFC configurations
• 💾 Save configurations to JSON files
• 📂 Load configurations from JSON files
• ▶️ Run configurations in local test environments
• 🧪 Test configurations against environments
• 🏗️ Define required deployment environments
• 📚 Explain SFC concepts and components
• 📊 Visualize data from configurations with FILE-TARGET
• 🚀 Type 'example' to run a sample configuration instantly

📋 **Supported Protocols:**
OPCUA | MODBUS | S7 | MQTT | HTTP | and more...

☁️ **Supported AWS Targets:**
AWS-S3 | AWS-IOT-CORE | AWS-TIMESTREAM | DEBUG | and more...

What would you like to do today?`

// FarewellText answers the exit commands without involving the agent.
const FarewellText = "🏭 Thank you for using the SFC Wizard!\nMay your industrial data flow smoothly to the cloud! ☁️"

const (
	noticeStoppedBeforeStart = "Generation was stopped before starting."
	noticeStoppedByUser      = "Generation was stopped by user."
	stopRejectedReason       = "No active generation to stop."
	busyReason               = "A generation is already running for this session."
)

// farewellCommands end the conversation when sent as the entire message.
var farewellCommands = map[string]struct{}{
	"exit": {},
	"quit": {},
	"bye":  {},
}

func isFarewell(text string) bool {
	_, ok := farewellCommands[strings.ToLower(text)]
	return ok
}

func timeoutNotice(deadline time.Duration) string {
	return fmt.Sprintf("Generation timed out after %.0f seconds.", deadline.Seconds())
}

// errorReply folds a worker failure into a chat-style assistant message.
func errorReply(err error) string {
	return fmt.Sprintf("❌ Error processing request: %v\nPlease try rephrasing your question or check your configuration.", err)
}
