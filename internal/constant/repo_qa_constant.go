package constant

// Replies sent to chat users. Placeholders are filled with fmt.Sprintf.
const (
	MsgWelcome = "🚀 Welcome to RepoInsight!\n\nSend the URL of the GitHub repository you want to analyze."

	MsgWelcomeReady = "🚀 RepoInsight is ready on %s.\n\nAsk a question, send another repository URL to switch, or send 'exit' to end the session."

	MsgInvalidURL = "❌ Please send a valid GitHub repository URL\n\nExample: %s\n\nOr send 'exit' to end the session"

	MsgAnalysisStarted = "🔍 Analyzing repository: %s\n\n⏳ Please wait..."

	MsgAnalysisReady = "✅ Repository analysis complete!\n\n📊 Analysis result:\n• Repository: %s\n• Files: %d\n• Code chunks: %d\n\n💬 You can start asking questions now!\n\nSend 'exit' to end the session"

	MsgAlreadyAnalyzing = "⏳ Still analyzing %s. Please wait, or send 'switch' / 'exit' to cancel."

	MsgAlreadyActive = "ℹ️ %s is already the active repository. Go ahead and ask a question."

	MsgAskQuestion = "Please enter your question, or send 'exit' to end the session"

	MsgThinking = "🤔 Thinking about your question: %s\n\n⏳ Please wait..."

	MsgAlreadyProcessing = "This question is already being processed, please wait..."

	MsgAnswer = "💡 Answer:\n\n%s\n\nKeep asking, or send 'exit' to end the session"

	MsgQueryFailed = "❌ Failed to get an answer, please try again\n\nKeep asking, or send 'exit' to end the session"

	MsgFarewell = "👋 Thanks for using RepoInsight!"

	MsgSwitchPrompt = "🔄 Repository cleared. Send the URL of the GitHub repository to analyze next."
)

// Analysis failures. One of the Keep* suffixes is appended.
const (
	MsgAnalysisSubmitFailed = "❌ Failed to start the repository analysis, please try again later."
	MsgAnalysisFailed       = "❌ Repository analysis failed: %s"
	MsgAnalysisTimedOut     = "⏰ Repository analysis timed out."
	MsgAnalysisError        = "❌ Something went wrong while analyzing the repository."

	MsgKeepOldRepo = "\n\nStill using %s. Ask a question or send another URL."
	MsgKeepNoRepo  = "\n\nSend a repository URL to try again, or 'exit' to end the session."
)

// Status and config replies.
const (
	MsgStatusHeader   = "📋 RepoInsight status\n\n• State: %s"
	MsgStatusRepo     = "\n• Repository: %s"
	MsgStatusPending  = "\n• Analyzing: %s"
	MsgStatusInFlight = "\n• Questions in progress: %d"
	MsgStatusNoTasks  = "\n\nYou have no analysis tasks."
	MsgStatusTasks    = "\n\nAnalysis tasks:"
	MsgStatusTask     = "\n%d. %s\n   Status: %s\n   Created: %s"

	MsgConfig = "⚙️ RepoInsight configuration\n\n🌐 API: %s\n• Request timeout: %s\n• Poll interval: %s\n• Query timeout: %s\n• Generation mode: %s\n\n🔤 Embedding:\n• Provider: %s\n• Model: %s\n\n🤖 LLM:\n• Provider: %s\n• Model: %s\n• Temperature: %.2f\n• Max tokens: %d"
)
