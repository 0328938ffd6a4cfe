package service

import (
	"context"
	"fmt"
	"log"
	"regexp"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"github.com/adith23/parking-automation-app/internal/plate"
)

// LPRService runs ad-hoc plate recognition on uploaded images via AWS
// Rekognition. The continuous vision pipeline does its own recognition;
// this path serves manual lookups from the operator UI.
type LPRService struct {
	rekognitionClient *rekognition.Client
}

func NewLPRService(rekClient *rekognition.Client) *LPRService {
	return &LPRService{rekognitionClient: rekClient}
}

// Normalized plate shapes like ABC123 or KA01AB1234: 4-10 characters with
// at least one letter and one digit. Filters obvious non-plate text out of
// the DetectText result before picking by confidence.
var plateShape = regexp.MustCompile(`^(?:[A-Z]+[0-9]|[0-9]+[A-Z])[A-Z0-9]*$`)

func plateShaped(candidate string) bool {
	return len(candidate) >= 4 && len(candidate) <= 10 && plateShape.MatchString(candidate)
}

// ProcessImageForLPR calls Rekognition DetectText on the image bytes and
// returns the normalized text of the most confident plate-shaped line.
func (s *LPRService) ProcessImageForLPR(ctx context.Context, imageBytes []byte) (string, float32, error) {
	if s.rekognitionClient == nil {
		return "", 0, fmt.Errorf("rekognition client is not configured")
	}

	input := &rekognition.DetectTextInput{
		Image: &types.Image{
			Bytes: imageBytes,
		},
	}

	result, err := s.rekognitionClient.DetectText(ctx, input)
	if err != nil {
		return "", 0, fmt.Errorf("rekognition DetectText: %w", err)
	}

	var bestPlate string
	var maxConfidence float32

	for _, detection := range result.TextDetections {
		if detection.Type != types.TextTypesLine {
			continue
		}
		candidate := plate.Normalize(aws.ToString(detection.DetectedText))
		if !plateShaped(candidate) {
			continue
		}
		if confidence := aws.ToFloat32(detection.Confidence); confidence > maxConfidence {
			maxConfidence = confidence
			bestPlate = candidate
		}
	}

	if bestPlate == "" {
		log.Printf("LPRService: no plate-shaped text among %d detections", len(result.TextDetections))
		return "", 0, fmt.Errorf("no license plate recognized in image")
	}
	return bestPlate, maxConfidence, nil
}
