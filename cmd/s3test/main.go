package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/simple-publish/pkg/simplepublish"
	s3pub "github.com/tendant/simple-publish/pkg/simplepublish/publisher/s3"
)

func main() {
	// Define command-line flags
	region := flag.String("region", "us-east-1", "AWS region")
	bucket := flag.String("bucket", "", "S3 bucket name")
	accessKey := flag.String("access-key", "", "AWS access key ID")
	secretKey := flag.String("secret-key", "", "AWS secret access key")
	endpoint := flag.String("endpoint", "", "Custom S3 endpoint (for MinIO, etc.)")
	usePathStyle := flag.Bool("use-path-style", false, "Use path-style addressing")
	publicBaseURL := flag.String("public-base-url", "", "Base URL reported for published objects")
	target := flag.String("target", "s3", "Target name reported in outcomes")

	// Define commands
	command := flag.String("command", "help", "Command to execute: publish, help")
	itemID := flag.String("item-id", "", "Item ID for the published document (random if empty)")
	title := flag.String("title", "Connectivity probe", "Title for the sample payload")
	body := flag.String("body", "Probe document written by s3test.", "Body for the sample payload")
	filePath := flag.String("file", "", "Read the payload body from this file instead of -body")
	kind := flag.String("kind", "post", "Content kind: post, article, image, video, story")

	// MinIO shortcut
	useMinio := flag.Bool("use-minio", false, "Use MinIO defaults (sets endpoint, path-style, etc.)")
	minioEndpoint := flag.String("minio-endpoint", "http://localhost:9000", "MinIO server endpoint")

	flag.Parse()

	// Apply MinIO defaults if requested
	if *useMinio {
		*endpoint = *minioEndpoint
		*usePathStyle = true
		if *accessKey == "" {
			*accessKey = "minioadmin"
		}
		if *secretKey == "" {
			*secretKey = "minioadmin"
		}
	}

	// Check for required parameters
	if *bucket == "" && *command != "help" && *command != "" {
		log.Fatal("Bucket name is required")
	}

	// Check for environment variables if flags not provided
	if *accessKey == "" {
		*accessKey = os.Getenv("AWS_ACCESS_KEY_ID")
	}

	if *secretKey == "" {
		*secretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}

	config := s3pub.Config{
		Target:          *target,
		Region:          *region,
		Bucket:          *bucket,
		AccessKeyID:     *accessKey,
		SecretAccessKey: *secretKey,
		Endpoint:        *endpoint,
		UsePathStyle:    *usePathStyle,
		PublicBaseURL:   *publicBaseURL,
	}

	switch strings.ToLower(*command) {
	case "publish":
		fmt.Println("Initializing S3 publisher with the following configuration:")
		fmt.Printf("  Region: %s\n", config.Region)
		fmt.Printf("  Bucket: %s\n", config.Bucket)
		fmt.Printf("  Endpoint: %s\n", config.Endpoint)
		fmt.Printf("  Use Path Style: %v\n", config.UsePathStyle)
		fmt.Printf("  Target: %s\n", config.Target)
		fmt.Println()

		ctx := context.Background()
		publisher, err := s3pub.New(ctx, config)
		if err != nil {
			log.Fatalf("Failed to initialize S3 publisher: %v", err)
		}

		contentKind := simplepublish.ContentKind(*kind)
		if !contentKind.IsValid() {
			log.Fatalf("Invalid content kind: %s", *kind)
		}

		payloadBody := *body
		if *filePath != "" {
			data, err := os.ReadFile(*filePath)
			if err != nil {
				log.Fatalf("Failed to read file: %v", err)
			}
			payloadBody = string(data)
		}

		id := uuid.New()
		if *itemID != "" {
			id, err = uuid.Parse(*itemID)
			if err != nil {
				log.Fatalf("Invalid item ID: %v", err)
			}
		}

		req := simplepublish.PublishRequest{
			ItemID:         id,
			Target:         publisher.Target(),
			IdempotencyKey: id.String() + ":" + publisher.Target(),
			Payload: simplepublish.Payload{
				Kind:  contentKind,
				Title: *title,
				Body:  payloadBody,
			},
		}

		fmt.Printf("Publishing item %s to bucket %s...\n", id, config.Bucket)
		startTime := time.Now()
		outcome, err := publisher.Publish(ctx, req)
		duration := time.Since(startTime)
		if err != nil {
			log.Fatalf("Publish failed: %v", err)
		}
		fmt.Printf("Publish successful (took %v)\n", duration)
		fmt.Printf("  Remote ID:  %s\n", outcome.RemoteID)
		fmt.Printf("  Remote URL: %s\n", outcome.RemoteURL)

	case "help", "":
		fmt.Println("S3 Publisher Test Application")
		fmt.Println("\nCommands:")
		fmt.Println("  publish       Publish a sample document to the bucket")
		fmt.Println("  help          Show this help message")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		fmt.Println("\nExamples:")
		fmt.Println("  Publish a sample document to AWS S3:")
		fmt.Println("    s3test -bucket my-bucket -access-key AKIAXXXX -secret-key XXXX -command publish")
		fmt.Println("\n  Publish a file body to MinIO:")
		fmt.Println("    s3test -use-minio -bucket published-content -command publish -file ./draft.md -title \"Draft\"")

	default:
		log.Fatalf("Unknown command: %s", *command)
	}
}
