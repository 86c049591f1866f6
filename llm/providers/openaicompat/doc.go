// Package openaicompat implements llm.Provider for any service that speaks
// the OpenAI Chat Completions format.
//
// Usage:
//
//	p := openaicompat.New(openaicompat.Config{
//	    ProviderName: "deepseek",
//	    BaseProviderConfig: providers.BaseProviderConfig{
//	        APIKey:  cfg.APIKey,
//	        BaseURL: "https://api.deepseek.com",
//	        Model:   "deepseek-chat",
//	    },
//	    JSONMode: true,
//	}, logger)
package openaicompat
