package llm

import (
	"encoding/json"
	"fmt"
)

// ClaimExtractionPrompt instructs the model to return a JSON object with
// a "claims" array. The extractor runs at low temperature so the same
// sentence yields a stable claim set.
const ClaimExtractionPrompt = `You identify checkable factual claims in a single sentence from a live conversation transcript.

A checkable claim is a statement about the world that could be verified or refuted against written sources: version numbers, dates, API behavior, regulations, statistics, definitions, recorded decisions.

NOT claims: opinions, questions, greetings, predictions, intentions, small talk, instructions.

Return JSON:
{"claims": [{"text": "<self-contained restatement of the claim>", "subject": "<main entity the claim is about>"}]}

Rules:
- Restate each claim so it stands alone without the surrounding conversation.
- Most sentences contain no claims; return {"claims": []} for those.
- Never invent claims that are not asserted in the sentence.`

// VerdictPrompt instructs the model to judge a claim against supplied
// evidence only. The cited URL must come from the evidence set; the
// synthesizer enforces this again on receipt.
const VerdictPrompt = `You verify a factual claim using ONLY the provided evidence passages.

Return JSON:
{"status": "supported" | "contradicted" | "unclear" | "not_found",
 "confidence": <0.0-1.0>,
 "rationale": "<1-2 sentence explanation>",
 "evidence_url": "<URL of the single most relevant passage>"}

Rules:
- "supported": the evidence affirms the claim.
- "contradicted": the evidence refutes the claim.
- "unclear": the evidence is relevant but inconclusive.
- "not_found": no passage addresses the claim.
- evidence_url must be one of the supplied passage URLs.
- Never fabricate information or cite sources outside the passages.`

// verdictUserPrompt renders the claim and evidence passages for the
// verdict request.
func verdictUserPrompt(claim string, passages []EvidencePassage) string {
	encoded, err := json.MarshalIndent(passages, "", "  ")
	if err != nil {
		encoded = []byte("[]")
	}
	return fmt.Sprintf("Claim: %s\n\nEvidence passages:\n%s", claim, encoded)
}
