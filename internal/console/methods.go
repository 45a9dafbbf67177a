package console

// Method describes one console method for methods/list.
type Method struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Params      map[string]interface{} `json:"params,omitempty"`
}

func intParam(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": description,
	}
}

// Methods returns every method the console serves.
func Methods() []Method {
	return []Method{
		{
			Name:        "ping",
			Description: "Health check. Returns an empty object.",
		},
		{
			Name:        "methods/list",
			Description: "List the console methods.",
		},

		// Station
		{
			Name:        "status",
			Description: "Current cycle state, selected part, expected scan payload, the last cycle result and database health.",
		},
		{
			Name:        "parts/list",
			Description: "All parts with their per-slot limits, and the selected part code.",
		},
		{
			Name:        "readings/recent",
			Description: "Most recent stored readings, newest first.",
			Params: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"limit": intParam("How many readings to return (default 20, max 500)"),
				},
			},
		},
		{
			Name:        "part/select",
			Description: "Make a part active for the following cycles. The choice survives restarts.",
			Params: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"code": map[string]interface{}{
						"type":        "string",
						"description": "Part code, e.g. A7",
					},
				},
				"required": []string{"code"},
			},
		},
		{
			Name:        "capture",
			Description: "Start a capture cycle now. Fails while another cycle is running.",
		},
		{
			Name:        "scan",
			Description: "Feed scanner input to the label confirmation. Characters or whole lines; a line ending completes an attempt.",
			Params: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"text": map[string]interface{}{
						"type":        "string",
						"description": "Scanned characters",
					},
				},
				"required": []string{"text"},
			},
		},
		{
			Name:        "scan/cancel",
			Description: "Abandon the open confirmation. The cycle ends without committing.",
		},

		// Configuration
		{
			Name:        "config/get",
			Description: "The live configuration and its version.",
		},
		{
			Name:        "config/region",
			Description: "Move or resize one display region. Applies from the next cycle.",
			Params: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"slot": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"angle1", "weight1", "angle2", "weight2"},
						"description": "Region to change",
					},
					"x":   intParam("Left edge in frame pixels"),
					"y":   intParam("Top edge in frame pixels"),
					"w":   intParam("Width in pixels"),
					"h":   intParam("Height in pixels"),
					"pad": intParam("Padding applied to every region"),
				},
				"required": []string{"slot"},
			},
		},
		{
			Name:        "config/threshold",
			Description: "Set the OCR confidence threshold. Applies from the next cycle.",
			Params: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"threshold": map[string]interface{}{
						"type":        "number",
						"minimum":     0,
						"maximum":     1,
						"description": "Minimum confidence for a value to be accepted",
					},
				},
				"required": []string{"threshold"},
			},
		},
	}
}
