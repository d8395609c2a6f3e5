package support

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/cucumber/godog"
)

// commandTimeout bounds a single CLI invocation.
const commandTimeout = 30 * time.Second

// iRunCommand executes a command and stores the result. stdout and stderr
// are kept apart because the CLI logs to stderr.
func (testCtx *TestContext) iRunCommand(command string) error {
	command = testCtx.substituteCommandVariables(command)

	testCtx.LastCommand = command
	testCtx.LastStartTime = time.Now()

	parts := strings.Fields(command)
	if len(parts) == 0 {
		return errors.New("empty command")
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...) //nolint:gosec // G204: commands come from feature files
	cmd.Dir = testCtx.WorkingDir
	cmd.Env = append(os.Environ(), testCtx.EnvVars...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	testCtx.LastOutput = stdout.String()
	testCtx.LastStderr = stderr.String()
	testCtx.LastError = err
	testCtx.LastDuration = time.Since(testCtx.LastStartTime)

	if err != nil {
		exitError := &exec.ExitError{}
		if errors.As(err, &exitError) {
			testCtx.LastExitCode = exitError.ExitCode()
		} else {
			testCtx.LastExitCode = -1
		}
	} else {
		testCtx.LastExitCode = 0
	}
	return nil
}

// theCommandShouldSucceed verifies the command succeeded.
func (testCtx *TestContext) theCommandShouldSucceed() error {
	if testCtx.LastExitCode != 0 {
		return fmt.Errorf("command failed with exit code %d: %w\nOutput: %s\nStderr: %s",
			testCtx.LastExitCode, testCtx.LastError, testCtx.LastOutput, testCtx.LastStderr)
	}
	return nil
}

// theCommandShouldFail verifies the command failed.
func (testCtx *TestContext) theCommandShouldFail() error {
	if testCtx.LastExitCode == 0 {
		return fmt.Errorf("command succeeded when it should have failed\nOutput: %s", testCtx.LastOutput)
	}
	return nil
}

// theOutputShouldContain verifies stdout contains specific text.
func (testCtx *TestContext) theOutputShouldContain(expectedText string) error {
	expectedText = testCtx.substituteCommandVariables(expectedText)
	if !strings.Contains(testCtx.LastOutput, expectedText) {
		return fmt.Errorf("output does not contain '%s'\nActual output: %s", expectedText, testCtx.LastOutput)
	}
	return nil
}

// theOutputShouldNotContain verifies stdout lacks specific text.
func (testCtx *TestContext) theOutputShouldNotContain(text string) error {
	if strings.Contains(testCtx.LastOutput, text) {
		return fmt.Errorf("output unexpectedly contains '%s'\nActual output: %s", text, testCtx.LastOutput)
	}
	return nil
}

// theStderrShouldContain verifies stderr contains specific text.
func (testCtx *TestContext) theStderrShouldContain(expectedText string) error {
	if !strings.Contains(testCtx.LastStderr, expectedText) {
		return fmt.Errorf("stderr does not contain '%s'\nActual stderr: %s", expectedText, testCtx.LastStderr)
	}
	return nil
}

// outputJSON decodes stdout as a JSON object.
func (testCtx *TestContext) outputJSON() (map[string]any, error) {
	output := strings.TrimSpace(testCtx.LastOutput)
	if !strings.HasPrefix(output, "{") {
		return nil, fmt.Errorf("no JSON object found in output: %s", testCtx.LastOutput)
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(output), &data); err != nil {
		return nil, fmt.Errorf("output is not valid JSON: %w\nOutput: %s", err, output)
	}
	return data, nil
}

// theOutputShouldBeValidJSON verifies the output is valid JSON.
func (testCtx *TestContext) theOutputShouldBeValidJSON() error {
	_, err := testCtx.outputJSON()
	return err
}

// theJSONShouldContain verifies JSON contains a specific field.
func (testCtx *TestContext) theJSONShouldContain(field string) error {
	data, err := testCtx.outputJSON()
	if err != nil {
		return err
	}
	_, err = lookupField(data, field)
	return err
}

// theJSONFieldShouldEqual compares a numeric JSON field.
func (testCtx *TestContext) theJSONFieldShouldEqual(field string, want int) error {
	data, err := testCtx.outputJSON()
	if err != nil {
		return err
	}
	return numberFieldEquals(data, field, want)
}

// lookupField resolves a dotted path such as "region.width".
func lookupField(data map[string]any, field string) (any, error) {
	parts := strings.Split(field, ".")
	var current any = data
	for i, part := range parts {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("cannot navigate into non-object field '%s'", strings.Join(parts[:i], "."))
		}
		val, exists := obj[part]
		if !exists {
			return nil, fmt.Errorf("field '%s' not found in JSON", strings.Join(parts[:i+1], "."))
		}
		current = val
	}
	return current, nil
}

func numberFieldEquals(data map[string]any, field string, want int) error {
	val, err := lookupField(data, field)
	if err != nil {
		return err
	}
	got, ok := val.(float64)
	if !ok {
		return fmt.Errorf("field '%s' is not a number: %v", field, val)
	}
	if int(got) != want || got != float64(int(got)) {
		return fmt.Errorf("field '%s' is %v, expected %d", field, got, want)
	}
	return nil
}

// theErrorShouldMention verifies the error message contains specific text.
func (testCtx *TestContext) theErrorShouldMention(errorText string) error {
	if testCtx.LastError == nil && testCtx.LastExitCode == 0 {
		return fmt.Errorf("no error occurred, but expected error containing '%s'", errorText)
	}

	fullErrorText := testCtx.LastStderr + " " + testCtx.LastOutput
	if testCtx.LastError != nil {
		fullErrorText += " " + testCtx.LastError.Error()
	}

	if !strings.Contains(strings.ToLower(fullErrorText), strings.ToLower(errorText)) {
		return fmt.Errorf("error does not contain '%s'\nActual error: %s", errorText, fullErrorText)
	}
	return nil
}

// theFileShouldExist verifies a file exists.
func (testCtx *TestContext) theFileShouldExist(filename string) error {
	fullPath := testCtx.resolvePath(filename)
	if _, err := os.Stat(fullPath); os.IsNotExist(err) {
		return fmt.Errorf("file does not exist: %s", fullPath)
	}
	return nil
}

// theFileShouldNotExist verifies a file was not written.
func (testCtx *TestContext) theFileShouldNotExist(filename string) error {
	fullPath := testCtx.resolvePath(filename)
	if _, err := os.Stat(fullPath); err == nil {
		return fmt.Errorf("file exists: %s", fullPath)
	}
	return nil
}

// theFileShouldContain verifies a file contains specific content.
func (testCtx *TestContext) theFileShouldContain(filename, expectedContent string) error {
	fullPath := testCtx.resolvePath(filename)
	content, err := os.ReadFile(fullPath) //nolint:gosec // G304: Test file reading with controlled path
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", fullPath, err)
	}
	if !strings.Contains(string(content), expectedContent) {
		return fmt.Errorf("file %s does not contain '%s'\nActual content: %s",
			filename, expectedContent, string(content))
	}
	return nil
}

// theEnvironmentVariableIsSetTo sets an environment variable for later commands.
func (testCtx *TestContext) theEnvironmentVariableIsSetTo(name, value string) error {
	testCtx.AddEnvVar(name, testCtx.substituteCommandVariables(value))
	return nil
}

// substituteCommandVariables replaces ${TMP} and ${SCENE} in command strings.
func (testCtx *TestContext) substituteCommandVariables(command string) string {
	command = strings.ReplaceAll(command, "${TMP}", testCtx.TempDir)
	if testCtx.ScenePath != "" {
		command = strings.ReplaceAll(command, "${SCENE}", testCtx.ScenePath)
	}
	return command
}

// theOutputShouldContainUsageInformation checks cobra's usage block.
func (testCtx *TestContext) theOutputShouldContainUsageInformation() error {
	for _, want := range []string{"Usage:", "Flags:"} {
		if err := testCtx.theOutputShouldContain(want); err != nil {
			return err
		}
	}
	return nil
}

// theOutputShouldListAvailableSubcommands checks the root command listing.
func (testCtx *TestContext) theOutputShouldListAvailableSubcommands() error {
	for _, want := range []string{"Available Commands:", "segment", "serve", "config"} {
		if err := testCtx.theOutputShouldContain(want); err != nil {
			return err
		}
	}
	return nil
}

// theOutputShouldListServerConfigurationFlags checks the serve help.
func (testCtx *TestContext) theOutputShouldListServerConfigurationFlags() error {
	for _, want := range []string{"--host", "--port", "--workers", "--timeout", "--cors-origin"} {
		if err := testCtx.theOutputShouldContain(want); err != nil {
			return err
		}
	}
	return nil
}

// theOutputShouldListSegmentationFlags checks the segment help.
func (testCtx *TestContext) theOutputShouldListSegmentationFlags() error {
	for _, want := range []string{"--region", "--fg", "--bg", "--iterations", "--lambda", "--morph", "--feather"} {
		if err := testCtx.theOutputShouldContain(want); err != nil {
			return err
		}
	}
	return nil
}

// buildInformationShouldBeIncluded checks the version line.
func (testCtx *TestContext) buildInformationShouldBeIncluded() error {
	for _, want := range []string{"commit:", "built:"} {
		if err := testCtx.theOutputShouldContain(want); err != nil {
			return err
		}
	}
	return nil
}

func (testCtx *TestContext) registerCommandSteps(sc *godog.ScenarioContext) {
	sc.Step(`^I run "([^"]*)"$`, testCtx.iRunCommand)
	sc.Step(`^the command should succeed$`, testCtx.theCommandShouldSucceed)
	sc.Step(`^the command should fail$`, testCtx.theCommandShouldFail)
	sc.Step(`^the environment variable "([^"]*)" is set to "([^"]*)"$`, testCtx.theEnvironmentVariableIsSetTo)
}

func (testCtx *TestContext) registerOutputSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the output should contain "([^"]*)"$`, testCtx.theOutputShouldContain)
	sc.Step(`^the output should not contain "([^"]*)"$`, testCtx.theOutputShouldNotContain)
	sc.Step(`^stderr should contain "([^"]*)"$`, testCtx.theStderrShouldContain)
	sc.Step(`^the output should be valid JSON$`, testCtx.theOutputShouldBeValidJSON)
	sc.Step(`^the JSON should contain "([^"]*)"$`, testCtx.theJSONShouldContain)
	sc.Step(`^the JSON field "([^"]*)" should be (\d+)$`, testCtx.theJSONFieldShouldEqual)
	sc.Step(`^the error should mention "([^"]*)"$`, testCtx.theErrorShouldMention)
}

func (testCtx *TestContext) registerFileSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the file "([^"]*)" should exist$`, testCtx.theFileShouldExist)
	sc.Step(`^the file "([^"]*)" should not exist$`, testCtx.theFileShouldNotExist)
	sc.Step(`^the file "([^"]*)" should contain "([^"]*)"$`, testCtx.theFileShouldContain)
}

func (testCtx *TestContext) registerHelpSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the output should contain usage information$`, testCtx.theOutputShouldContainUsageInformation)
	sc.Step(`^the output should list available subcommands$`, testCtx.theOutputShouldListAvailableSubcommands)
	sc.Step(`^the output should list server configuration flags$`, testCtx.theOutputShouldListServerConfigurationFlags)
	sc.Step(`^the output should list segmentation flags$`, testCtx.theOutputShouldListSegmentationFlags)
	sc.Step(`^build information should be included$`, testCtx.buildInformationShouldBeIncluded)
}

// RegisterCommonSteps registers all common step definitions.
func (testCtx *TestContext) RegisterCommonSteps(sc *godog.ScenarioContext) {
	testCtx.registerCommandSteps(sc)
	testCtx.registerOutputSteps(sc)
	testCtx.registerFileSteps(sc)
	testCtx.registerHelpSteps(sc)
}
