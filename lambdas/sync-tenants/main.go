package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	v1 "github.com/bastelix/sommerfest-quiz-sub007/adminapi/v1"
	"github.com/bastelix/sommerfest-quiz-sub007/core"
	"github.com/bastelix/sommerfest-quiz-sub007/security"
)

type SyncEvent struct {
	BaseURL string `json:"baseUrl"`
}

func RunSync(ctx context.Context, baseURL string) (*core.SyncResult, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	token, err := security.CreateAdminToken(&security.AdminIdentity{
		Subject: "sync-tenants-lambda",
	}, secret, 300)
	if err != nil {
		return nil, fmt.Errorf("failed to create admin token: %w", err)
	}

	client := v1.NewAdminClient(baseURL, token)

	result, err := client.Tenants.Sync()
	if err != nil {
		return nil, fmt.Errorf("failed to trigger tenant sync: %w", err)
	}

	if result.Throttled {
		fmt.Printf("[INFO] Sync throttled, last run at %v\n", result.Sync.LastRunAt)
	} else {
		fmt.Printf("[INFO] Sync imported %d tenant(s)\n", result.Imported)
	}

	return result, nil
}

func HandleRequest(ctx context.Context, event SyncEvent) (*core.SyncResult, error) {
	eventJson, _ := json.Marshal(event)
	fmt.Printf("[INFO] Event: %s\n", string(eventJson))

	baseURL := event.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("TENANTS_API_URL")
	}
	if baseURL == "" {
		return nil, fmt.Errorf("baseUrl (or TENANTS_API_URL) is required")
	}

	return RunSync(ctx, baseURL)
}

func main() {
	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		lambda.Start(HandleRequest)
	} else {
		result, err := RunSync(context.Background(), os.Getenv("TENANTS_API_URL"))
		if err != nil {
			fmt.Printf("[ERROR] %v\n", err)
			os.Exit(1)
		}
		resJson, _ := json.MarshalIndent(result, "", "  ")
		fmt.Printf("[SUCCESS] Result:\n%s\n", string(resJson))
	}
}
