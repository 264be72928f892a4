package synth

import (
	"fmt"
	"strings"

	"inspira/utterance"
)

func buildPrompt(in utterance.Input) string {
	var ctxBlock strings.Builder
	fmt.Fprintf(&ctxBlock, "User's full spoken utterance (transcript):\n%q\n", in.Transcript)
	if in.Summary != "" {
		fmt.Fprintf(&ctxBlock, "\nAI-generated summary of the utterance (use this for conciseness if appropriate):\n%q\n", in.Summary)
	}
	if len(in.Topics) > 0 {
		fmt.Fprintf(&ctxBlock, "\nAI-detected topics in the utterance (use these for thematic hints):\n- %s\n", strings.Join(in.Topics, "\n- "))
	}

	return fmt.Sprintf(promptTemplate, ctxBlock.String())
}

const promptTemplate = `You are an AI assistant helping a user brainstorm by transforming their spoken ideas into structured "idea tiles".
Analyze the provided user utterance data:
%s

Respond with a single, valid JSON object strictly matching this schema:
{
  "category": "fact-check" | "resource" | "creative" | "summary" | "action-item" | "question" | "observation",
  "title": "string", // Max 10 words, concise, engaging, and directly reflecting the core idea. Use topics/summary for hints.
  "text": "string", // Max 30 words, brief explanation or action. Use summary if available, otherwise keep it tight.
  "links": ["string"?, "string"?], // Optional, max 2 relevant URLs. Omit or use [] if none.
  "palette": "primary" | "secondary" | "accent" | "neutral" | "warning",
  "priority": "integer" // 1 (lowest) to 10 (highest)
}

Key Guidelines for Generating Tile Content:

1.  **Core Idea Extraction**:
    *   Prioritize the provided "summary" (if available) for the "title" and "text" to ensure conciseness and capture the main point.
    *   Use "topics" (if available) to refine the theme for "title" and "category".
    *   Refer to the full "transcript" for nuances, specific keywords, or if the summary/topics are too generic.
    *   "title": Must be highly relevant. Make it catchy and action-oriented if appropriate.
    *   "text": Briefly elaborate or suggest a clear next step. Avoid generic phrases.

2.  **Categorization Logic (Leverage Topics/Summary)**:
    *   "fact-check": User wants to verify information, check data, or get a factual answer. Often phrased as a question about data/facts.
    *   "resource": User suggests looking up information, finding a guide, tool, article.
    *   "creative": New ideas, brainstorming, "what if" scenarios, suggestions for change.
    *   "summary": User makes a concluding remark, asks for a recap, states a key takeaway. If the transcription service provided a summary, this category is a good candidate if no other intent is clear.
    *   "action-item": User states a clear task or something that needs to be done. (e.g., "We need to schedule a meeting", "Send the report to John").
    *   "question": User poses an open-ended question, seeks opinions, or clarification beyond simple facts. (e.g., "What do you all think about this approach?", "How can we improve X?").
    *   "observation": User makes a statement about something they noticed or a current state. (e.g., "The UI looks a bit cluttered.", "It's raining outside.").

3.  **Handling Vague Inputs (Even with Summary/Topics)**:
    *   If the overall input (transcript, summary, topics) is still vague or lacks clear actionable intent (e.g., "hmm," "okay so...", "interesting"), create a tile that reflects this.
    *   Use "creative" or "observation". Title: "Fleeting Thought", "User Musings", "Noted Observation". Text: "User expressed [brief summary/topic] without a clear next step." or "User said: [short snippet]".
    *   Example for vague input "Hmm, that pattern...":
        Input: { transcript: "Hmm, that pattern...", summary: "User observed a pattern.", topics: ["pattern analysis"] }
        Output: {"category": "observation", "title": "Pattern Observed", "text": "User noted 'Hmm, that pattern...'. Consider its significance.", "links": [], "palette": "neutral", "priority": 3}

4.  **Link Generation**: Only if EXPLICITLY mentioned or extremely obvious (e.g., "check Wikipedia for X"). Default to [].

5.  **Palette & Priority**:
    *   'primary': Core tasks, facts. 'secondary': Resources, less critical info. 'accent': Creative, new ideas. 'neutral': Summaries, observations. 'warning': Potential issues or urgent flags.
    *   Priority: Higher for clear tasks/questions (6-9). Lower for general observations (1-4). Standard ideas (5-7).

6.  **AVOID (CRITICAL!):**
    *   Generic tiles. Make them specific to the user's words (especially the summary/topics).
    *   Inventing complex ideas if the input is simple. Faithfully represent the user's intent.
    *   Putting "Prio" or "Priority" in "title" or "text".

Examples of GOOD Transformations:

Input: { transcript: "Can we find out what our competitors did for their last product launch? That's important.", summary: "Research competitor product launch strategies.", topics: ["competitor analysis", "product launch"] }
JSON Output:
{
  "category": "action-item",
  "title": "Analyze Competitor Launch",
  "text": "Research competitor strategies from recent product launches. (Summary: Research competitor product launch strategies)",
  "links": [],
  "palette": "primary",
  "priority": 8
}

Input: { transcript: "So, the key takeaway is ensuring alignment on the Q4 roadmap goals. Let's make that a priority.", summary: "Ensure Q4 roadmap goal alignment.", topics: ["roadmap", "q4 goals", "team alignment"] }
JSON Output:
{
  "category": "summary",
  "title": "Align on Q4 Roadmap",
  "text": "Key takeaway: Ensure team alignment on Q4 roadmap goals.",
  "links": [],
  "palette": "primary",
  "priority": 9
}

Input: { transcript: "Application testing is currently underway, everything seems stable so far.", summary: "Application testing is ongoing and stable.", topics: ["application testing", "software stability"] }
JSON Output:
{
    "category": "observation",
    "title": "App Testing Update",
    "text": "Status: Application testing is in progress and appears stable.",
    "links": [],
    "palette": "neutral",
    "priority": 5
}

Now, analyze the provided user utterance data and generate the JSON object:
`
