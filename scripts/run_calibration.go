package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/robot/client"
	genericservice "go.viam.com/rdk/services/generic"
	"go.viam.com/utils/rpc"
)

func runCalibration(envFile, serviceName string, samples int) {
	// Load .env file
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			fmt.Printf("Error loading %s: %v\n", envFile, err)
			fmt.Println("Using system environment variables instead")
		} else {
			fmt.Printf("Loaded environment from: %s\n", envFile)
		}
	} else {
		// Try to load default .env file
		if err := godotenv.Load(); err != nil {
			fmt.Println("Warning: .env file not found, using system environment variables")
		} else {
			fmt.Println("Loaded environment from: .env")
		}
	}

	logger := logging.NewDebugLogger("client")

	// Get credentials from environment
	robotAddress := os.Getenv("VIAM_ROBOT_ADDRESS")
	apiKeyID := os.Getenv("VIAM_API_KEY_ID")
	apiKey := os.Getenv("VIAM_API_KEY")

	if robotAddress == "" || apiKeyID == "" || apiKey == "" {
		logger.Fatal("Missing required environment variables: VIAM_ROBOT_ADDRESS, VIAM_API_KEY_ID, VIAM_API_KEY")
	}

	machine, err := client.New(
		context.Background(),
		robotAddress,
		logger,
		client.WithDialOptions(rpc.WithEntityCredentials(
			apiKeyID,
			rpc.Credentials{
				Type:    rpc.CredentialsTypeAPIKey,
				Payload: apiKey,
			})),
	)
	if err != nil {
		logger.Fatal(err)
	}

	defer machine.Close(context.Background())
	logger.Info("Resources:")
	logger.Info(machine.ResourceNames())

	calibrator, err := machine.ResourceByName(genericservice.Named(serviceName))
	if err != nil {
		logger.Fatalf("can't find calibrator service %q: %v", serviceName, err)
	}

	status, err := calibrator.DoCommand(context.Background(), map[string]interface{}{"command": "status"})
	if err != nil {
		logger.Fatal(err)
	}
	logger.Infof("calibrator status: %+v", status)

	fmt.Println("=== Sample collection ===")
	taken := 0
	for taken < samples {
		fmt.Printf("Move the robot to a new pose with the marker visible (%d/%d), then press Enter\n", taken+1, samples)
		fmt.Scanln()

		resp, err := calibrator.DoCommand(context.Background(), map[string]interface{}{"command": "take-sample"})
		if err != nil {
			logger.Errorf("sample failed, adjust the pose and try again: %v", err)
			continue
		}
		taken++
		logger.Infof("sample stored: count=%v state=%v", resp["sample_count"], resp["state"])
	}

	quality, err := calibrator.DoCommand(context.Background(), map[string]interface{}{"command": "sample-quality"})
	if err != nil {
		logger.Errorf("quality check failed: %v", err)
	} else {
		logger.Infof("sample quality: %+v", quality)
		if warnings, ok := quality["warnings"].([]interface{}); ok && len(warnings) > 0 {
			fmt.Println("Quality warnings (consider taking more varied samples):")
			for _, w := range warnings {
				fmt.Printf("  - %v\n", w)
			}
		}
	}

	fmt.Println("\n=== Computing calibration ===")
	result, err := calibrator.DoCommand(context.Background(), map[string]interface{}{"command": "compute-calibration"})
	if err != nil {
		logger.Fatal(err)
	}

	logger.Infof("calibration result: %+v", result["calibration"])
	fmt.Printf("Calibration complete: %+v\n", result["calibration"])
}

func main() {
	// Parse command-line flags
	envFile := flag.String("env", "", "Path to .env file (e.g., .env.robot1)")
	serviceName := flag.String("service", "calibrator", "Name of the calibrator service on the machine")
	samples := flag.Int("samples", 5, "Number of sample pairs to collect")
	flag.Parse()

	runCalibration(*envFile, *serviceName, *samples)
}
