package security

type ChecklistItem struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Ref         string `json:"ref"`
}

const (
	refAuth0Guide    = "https://auth0.com/blog/five-step-guide-securing-moltbot-ai-agent/"
	refClawdSecurity = "https://docs.clawd.bot/security"
	refIntruder      = "https://www.intruder.io/blog/clawdbot-when-easy-ai-becomes-a-security-nightmare"
)

// Checklist returns the hardening checklist. Callers get their own copy.
func Checklist() []ChecklistItem {
	return []ChecklistItem{
		{ID: "sandbox", Title: "Enable sandbox mode", Description: "Run OpenClaw in VM, container, or devbox. Restrict to one project directory.", Ref: refAuth0Guide},
		{ID: "bind_loopback", Title: "Bind gateway to loopback", Description: "Set gateway.bind to 127.0.0.1 (not 0.0.0.0) to prevent external access.", Ref: refClawdSecurity},
		{ID: "allow_from", Title: "Restrict allowFrom list", Description: "Use allowFrom to whitelist which users/channels can talk to the bot.", Ref: refClawdSecurity},
		{ID: "allow_lists", Title: "Enable command and path allow-lists", Description: "Allow-list commands, filesystem paths, integrations. Default-deny.", Ref: refAuth0Guide},
		{ID: "secrets", Title: "Scoped tokens and secret hygiene", Description: "Use scoped tokens, short-lived credentials. Never store secrets in .env agent can read.", Ref: refAuth0Guide},
		{ID: "skills_audit", Title: "Audit third-party skills", Description: "Malicious skills distributed via community can harvest creds. Verify source.", Ref: refIntruder},
		{ID: "prompt_injection", Title: "Prompt injection defense", Description: "Use model with injection defense. Test. Do not expose to untrusted social channels.", Ref: "https://auth0.com/blog/prompt-injection-ai-browser/"},
		{ID: "no_group_personal", Title: "Do not add personal bot to group chats", Description: "Personal bot knows your secrets. Use separate work bot for shared spaces.", Ref: refAuth0Guide},
	}
}

type PlaybookStep struct {
	Step   int    `json:"step"`
	Action string `json:"action"`
	Detail string `json:"detail"`
}

type Playbook struct {
	Title       string         `json:"title"`
	Steps       []PlaybookStep `json:"steps"`
	Compositing string         `json:"compositing"`
	References  []string       `json:"references"`
}

// SandboxPlaybook describes provisioning a VM sandbox for OpenClaw with a
// virtualization MCP server.
func SandboxPlaybook() Playbook {
	return Playbook{
		Title: "OpenClaw sandbox provisioning via virtualization-mcp",
		Steps: []PlaybookStep{
			{Step: 1, Action: "Ensure virtualization-mcp is configured in your MCP client", Detail: "Add virtualization-mcp to your MCP client config. Requires VirtualBox 7+."},
			{Step: 2, Action: "Create VM using vm_management", Detail: "vm_management(action='create', vm_name='openclaw-sandbox', os_type='Ubuntu_64', memory_mb=4096, disk_size_gb=40)"},
			{Step: 3, Action: "Start VM and install OpenClaw inside", Detail: "vm_management(action='start', vm_name='openclaw-sandbox'). SSH/attach, run openclaw onboard."},
			{Step: 4, Action: "Configure port forwarding (host 18789 -> guest 18789)", Detail: "network_management or VM settings to forward Gateway port."},
			{Step: 5, Action: "Create snapshot after clean install", Detail: "snapshot_management(action='create', vm_name='openclaw-sandbox', snapshot_name='clean-install')"},
			{Step: 6, Action: "Point clawd-mcp at forwarded host port", Detail: "OPENCLAW_GATEWAY_URL=http://127.0.0.1:18789"},
		},
		Compositing: "With both clawd-mcp and virtualization-mcp in your MCP client, the LLM can execute these steps.",
		References:  []string{refAuth0Guide, refIntruder},
	}
}
