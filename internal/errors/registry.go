package errors

import "sort"

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
	DocURL   string
}

const docBase = "https://tapas.dev/docs/errors/"

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// Lookup errors (E001-E009)
	"E001": {
		Category: CategoryLookup,
		Message:  "Unknown selector",
		Detail:   "The binding names a selector that is not registered in the selector catalog.",
		DocURL:   docBase + "E001",
	},
	"E002": {
		Category: CategoryLookup,
		Message:  "Unknown action",
		Detail:   "The event binding names an action creator that is not registered in the action catalog.",
		DocURL:   docBase + "E002",
	},
	"E003": {
		Category: CategoryLookup,
		Message:  "Unknown transform",
		Detail:   "The binding names a value transform that is not registered in the transform catalog.",
		DocURL:   docBase + "E003",
	},
	"E004": {
		Category: CategoryLookup,
		Message:  "Invalid element selector",
		Detail:   "A CSS selector used to locate elements could not be parsed.",
		DocURL:   docBase + "E004",
	},

	// Expression errors (E010-E019)
	"E010": {
		Category: CategoryExpression,
		Message:  "Expression compile failed",
		Detail:   "The expression source is not a valid program.",
		DocURL:   docBase + "E010",
	},
	"E011": {
		Category: CategoryExpression,
		Message:  "Expression evaluation failed",
		Detail:   "The expression raised an error while running.",
		DocURL:   docBase + "E011",
	},

	// Shape errors (E020-E029)
	"E020": {
		Category: CategoryShape,
		Message:  "List value is not a sequence",
		Detail:   "A list binding resolved to a value that is not an array or slice.",
		DocURL:   docBase + "E020",
	},
	"E021": {
		Category: CategoryShape,
		Message:  "State update must be a table",
		Detail:   "set_state was called with a value that is not a table of names to values.",
		DocURL:   docBase + "E021",
	},

	// Binding and registry errors (E030-E039)
	"E030": {
		Category: CategoryBinding,
		Message:  "Element not registered",
		Detail:   "The element handle does not refer to a live registry entry.",
		DocURL:   docBase + "E030",
	},
	"E031": {
		Category: CategoryBinding,
		Message:  "Unknown parent element",
		Detail:   "The explicit parent passed at registration is not registered.",
		DocURL:   docBase + "E031",
	},
	"E033": {
		Category: CategoryBinding,
		Message:  "Element already registered",
		Detail:   "The element is already present in the registry.",
		DocURL:   docBase + "E033",
	},
	"E034": {
		Category: CategoryBinding,
		Message:  "Element not found",
		Detail:   "No element carries the data-tapas-id, or a binding target matched nothing inside the element.",
		DocURL:   docBase + "E034",
	},
	"E032": {
		Category: CategoryBinding,
		Message:  "Element has no list template",
		Detail:   "A list binding is attached to an element that has no child element to use as the item template.",
		DocURL:   docBase + "E032",
	},

	// Descriptor errors (E040-E049)
	"E040": {
		Category: CategoryDescriptor,
		Message:  "Invalid binding descriptor",
		Detail:   "The descriptor document could not be decoded.",
		DocURL:   docBase + "E040",
	},
	"E041": {
		Category: CategoryDescriptor,
		Message:  "Binding has no id",
		Detail:   "Every descriptor entry needs the data-tapas-id of the element it binds.",
		DocURL:   docBase + "E041",
	},
	"E042": {
		Category: CategoryDescriptor,
		Message:  "Unknown binding key",
		Detail:   "The descriptor entry contains a key that is not a recognised binding kind.",
		DocURL:   docBase + "E042",
	},

	// Configuration errors (E120-E139)
	"E120": {
		Category: CategoryConfig,
		Message:  "Invalid tapas.json",
		Detail:   "The configuration file could not be parsed as JSON.",
		DocURL:   docBase + "E120",
	},
	"E121": {
		Category: CategoryConfig,
		Message:  "Missing required configuration",
		Detail:   "A required configuration field is missing.",
		DocURL:   docBase + "E121",
	},
	"E122": {
		Category: CategoryConfig,
		Message:  "Invalid configuration value",
		Detail:   "A configuration field has an invalid value.",
		DocURL:   docBase + "E122",
	},

	// CLI errors (E140-E149)
	"E140": {
		Category: CategoryCLI,
		Message:  "Input file not found",
		Detail:   "The document or descriptor file given on the command line does not exist.",
		DocURL:   docBase + "E140",
	},
	"E141": {
		Category: CategoryCLI,
		Message:  "Config file not found",
		Detail:   "tapas.json was not found in the working directory or any parent.",
		DocURL:   docBase + "E141",
	},
	"E142": {
		Category: CategoryCLI,
		Message:  "Port already in use",
		Detail:   "The server port is already in use by another process.",
		DocURL:   docBase + "E142",
	},
	"E143": {
		Category: CategoryCLI,
		Message:  "Directory already exists",
		Detail:   "tapas init will not write into an existing directory.",
		DocURL:   docBase + "E143",
	},
	"E144": {
		Category: CategoryCLI,
		Message:  "Unknown template",
		Detail:   "The project template named on the command line does not exist.",
		DocURL:   docBase + "E144",
	},
	"E145": {
		Category: CategoryCLI,
		Message:  "Publish failed",
		Detail:   "The rendered page or one of its assets could not be uploaded.",
		DocURL:   docBase + "E145",
	},
	"E146": {
		Category: CategoryCLI,
		Message:  "Unknown error code",
		Detail:   "tapas errors was asked to explain a code that is not registered.",
		DocURL:   docBase + "E146",
	},
}

// GetAllCodes returns all registered error codes in ascending order.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}
