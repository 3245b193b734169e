package augment

import (
	"fmt"

	"github.com/auditforge/auditforge/api/schemas"
)

const systemPrompt = "You are a senior smart contract security auditor. Answer for a working Solidity developer, be concrete, and never invent findings."

// The three narrative fields, each produced by an independent prompt.
const (
	fieldExplanation = "explanation"
	fieldFixedCode   = "fixed_code"
	fieldTestCase    = "test_case"
)

func explanationRequest(f schemas.Finding) schemas.GenerationRequest {
	prompt := fmt.Sprintf(`Explain this smart contract vulnerability in plain English for a developer:

Vulnerability ID: %s
Title: %s
Description: %s
Severity: %s
Code Snippet:
`+"```solidity\n%s\n```"+`

Provide:
1. Simple explanation of the issue
2. Potential risks if exploited
3. Real-world analogy to help understand`,
		f.ID, f.Title, f.Description, f.Severity, f.CodeSnippet)

	return schemas.GenerationRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   prompt,
		Options:      schemas.GenerationOptions{Temperature: 0.3, MaxTokens: 512},
	}
}

func fixedCodeRequest(f schemas.Finding) schemas.GenerationRequest {
	prompt := fmt.Sprintf(`Provide a fixed code solution for this vulnerability with detailed comments:

Vulnerability ID: %s
Original Code:
`+"```solidity\n%s\n```"+`

Requirements:
- Show complete fixed function/code block
- Add inline comments explaining each fix
- Preserve original functionality
- Follow Solidity best practices
- Specifically address Hedera-specific considerations if applicable`,
		f.ID, f.CodeSnippet)

	return schemas.GenerationRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   prompt,
		Options:      schemas.GenerationOptions{Temperature: 0.2, MaxTokens: 1024},
	}
}

func testCaseRequest(f schemas.Finding) schemas.GenerationRequest {
	prompt := fmt.Sprintf(`Generate a Solidity test case for this vulnerability using Hardhat:

Vulnerability ID: %s
Description: %s

Requirements:
- Test should verify vulnerability exists in original code
- Test should verify fix resolves vulnerability
- Use Hardhat testing framework
- Include setup and assertions
- Consider Hedera-specific testing requirements if applicable`,
		f.ID, f.Description)

	return schemas.GenerationRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   prompt,
		Options:      schemas.GenerationOptions{Temperature: 0.4, MaxTokens: 1024},
	}
}
