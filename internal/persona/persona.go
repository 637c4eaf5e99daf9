// Package persona holds the static profile that parameterizes response
// generation: who the agent is, what it talks about, and how it writes.
package persona

import (
	"encoding/json"
	"fmt"
	"os"
)

// Style holds writing guidelines for different output kinds
type Style struct {
	All  []string `json:"all"`
	Post []string `json:"post"`
}

// Profile is a read-only persona record, supplied once at construction
type Profile struct {
	// Name is the persona's display name
	Name string `json:"name"`

	// System is the role description used as the base of every prompt
	System string `json:"system"`

	// Handle is the agent's own username on the content service
	Handle string `json:"handle"`

	// UserID is the agent's own account identifier on the content service
	UserID string `json:"user_id"`

	// Topics the persona covers; also used to broaden search recall
	Topics []string `json:"topics"`

	// PostExamples are reference posts in the persona's voice
	PostExamples []string `json:"post_examples"`

	Style Style `json:"style"`
}

// Load reads a persona profile from a JSON file and validates it
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona %s: %w", path, err)
	}

	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse persona %s: %w", path, err)
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("persona %s: %w", path, err)
	}
	return &p, nil
}

// Validate checks the fields the engagement pipeline depends on.
// A profile that fails validation must not be used; this is fatal at startup.
func (p *Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if p.System == "" {
		return fmt.Errorf("system description is required")
	}
	if p.Handle == "" {
		return fmt.Errorf("handle is required")
	}
	if p.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if len(p.Topics) == 0 {
		return fmt.Errorf("at least one topic is required")
	}
	return nil
}

// Default returns a built-in profile used when no persona file is configured
func Default() *Profile {
	return &Profile{
		Name:   "SamuraiX",
		System: "Roleplay as SamuraiX, a brilliant software and blockchain engineer who thinks deep, builds projects and grows web3 communities and shares technical insights with a touch of professional humor.",
		Handle: "samuraix_dev",
		UserID: "0",
		Topics: []string{
			"ZK-proofs",
			"L2 scaling",
			"gas optimization",
			"smart contracts",
			"consensus algorithms",
			"cryptography",
			"distributed systems",
			"system architecture",
			"performance tuning",
			"security auditing",
		},
		PostExamples: []string{
			"just wrote a recursive ZK-SNARK prover that runs in O(log n) time. the math is beautiful, the code is ugly, but it works. ship it.",
			"pro tip: if your smart contract deployment costs >$50 in gas, you're doing it wrong. here's how i got mine down to $3: [link]",
			"built a tool that automatically refactors solidity contracts for gas optimization. saved 1.2M gas on a popular DEX today.",
			"hot take: L2s aren't the future. they're the present. if you're still building exclusively on L1, you're burning money.",
			"found a way to reduce calldata by 70% using advanced compression algorithms. your move, gas fees.",
			"reviewed 50 smart contracts this week. most common issue? reentrancy guards missing in non-obvious places. always check your state changes.",
			"foundry tip: use fuzz testing with custom invariants. found 3 edge cases our unit tests missed. fuzzing > assumptions.",
			"implemented recursive ZK-SNARKs in rust. 100x faster proving time. math is beautiful, code is ugly, benchmarks don't lie.",
			"unpopular opinion: good documentation > good code. you can fix bad code, but you can't fix confused developers.",
			"best way to learn web3: build something that scares you. then audit it until it doesn't.",
		},
		Style: Style{
			All: []string{
				"technical but accessible",
				"concise and impactful",
				"use data to back claims",
				"maintain professional tone",
				"use humor sparingly",
			},
			Post: []string{
				"lead with metrics/results",
				"include specific technical details",
				"share unexpected findings",
				"highlight practical applications",
				"emphasize impact/improvements",
			},
		},
	}
}
