package openai

// toolDefinitions 是暴露给模型的全部函数。每个函数都开启 strict 模式：
// 枚举约束的参数、禁止额外字段，保证返回值不会越出管线约定。
var toolDefinitions = []map[string]any{
	{
		"type": "function",
		"function": map[string]any{
			"name":        "transfer_token",
			"strict":      true,
			"description": "Transfer tokens (SUI or USDC) to a recipient address or contact name",
			"parameters": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"recipient": map[string]any{
						"type":        "string",
						"description": "Recipient wallet address (0x...) or contact name",
					},
					"amount": map[string]any{
						"type":        "string",
						"description": "Amount in human-readable units, e.g. '100' or '1.5'",
					},
					"token": map[string]any{
						"type":        "string",
						"enum":        []string{"SUI", "USDC"},
						"description": "Token to transfer",
					},
					"is_contact_name": map[string]any{
						"type":        "boolean",
						"description": "True when recipient is a contact name rather than an address",
					},
				},
				"required":             []string{"recipient", "amount", "token", "is_contact_name"},
				"additionalProperties": false,
			},
		},
	},
	{
		"type": "function",
		"function": map[string]any{
			"name":        "resolve_contact",
			"strict":      true,
			"description": "Look up a contact's wallet address by display name",
			"parameters": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name": map[string]any{
						"type":        "string",
						"description": "Contact display name, e.g. 'Mom'",
					},
				},
				"required":             []string{"name"},
				"additionalProperties": false,
			},
		},
	},
	{
		"type": "function",
		"function": map[string]any{
			"name":        "get_balance",
			"strict":      true,
			"description": "Check the balance of a token in the user's wallet",
			"parameters": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"token": map[string]any{
						"type": "string",
						"enum": []string{"SUI", "USDC"},
					},
				},
				"required":             []string{"token"},
				"additionalProperties": false,
			},
		},
	},
	{
		"type": "function",
		"function": map[string]any{
			"name":        "stake_token",
			"strict":      true,
			"description": "Stake SUI in the staking pool",
			"parameters": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"amount": map[string]any{
						"type":        "string",
						"description": "Amount of SUI to stake in human-readable units",
					},
					"token": map[string]any{
						"type": "string",
						"enum": []string{"SUI"},
					},
				},
				"required":             []string{"amount", "token"},
				"additionalProperties": false,
			},
		},
	},
	{
		"type": "function",
		"function": map[string]any{
			"name":        "unstake_token",
			"strict":      true,
			"description": "Withdraw staked SUI from the staking pool",
			"parameters": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"amount": map[string]any{
						"type":        "string",
						"description": "Amount of SUI to unstake in human-readable units",
					},
					"token": map[string]any{
						"type": "string",
						"enum": []string{"SUI"},
					},
				},
				"required":             []string{"amount", "token"},
				"additionalProperties": false,
			},
		},
	},
	{
		"type": "function",
		"function": map[string]any{
			"name":        "get_stake_info",
			"strict":      true,
			"description": "Check how much SUI the user has staked",
			"parameters": map[string]any{
				"type":                 "object",
				"properties":           map[string]any{},
				"required":             []string{},
				"additionalProperties": false,
			},
		},
	},
	{
		"type": "function",
		"function": map[string]any{
			"name":        "save_contact",
			"strict":      true,
			"description": "Save a contact (name and wallet address) into the user's encrypted contact book",
			"parameters": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name": map[string]any{
						"type":        "string",
						"description": "Contact display name",
					},
					"address": map[string]any{
						"type":        "string",
						"description": "Contact Sui wallet address (0x...)",
					},
					"notes": map[string]any{
						"type":        "string",
						"description": "Optional notes, empty string when absent",
					},
				},
				"required":             []string{"name", "address", "notes"},
				"additionalProperties": false,
			},
		},
	},
	{
		"type": "function",
		"function": map[string]any{
			"name":        "list_contacts",
			"strict":      true,
			"description": "List all contacts in the user's encrypted contact book",
			"parameters": map[string]any{
				"type":                 "object",
				"properties":           map[string]any{},
				"required":             []string{},
				"additionalProperties": false,
			},
		},
	},
}
