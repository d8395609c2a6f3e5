package support

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/MeKo-Tech/cutout/internal/grabcut"
	"github.com/MeKo-Tech/cutout/internal/server"
	"github.com/MeKo-Tech/cutout/internal/testutil"
	"github.com/MeKo-Tech/cutout/internal/utils"
	"github.com/MeKo-Tech/cutout/internal/worker"
	"github.com/cucumber/godog"
	"github.com/disintegration/imaging"
	"github.com/gorilla/websocket"
)

// wsReadTimeout bounds the wait for a single websocket message.
const wsReadTimeout = 10 * time.Second

// HTTPTestServerWrapper wraps httptest.Server for integration tests.
type HTTPTestServerWrapper struct {
	Server     *httptest.Server
	TestServer *server.Server
}

// theServerIsRunning starts a segmentation server on an ephemeral port.
func (testCtx *TestContext) theServerIsRunning() error {
	return testCtx.startServer(server.Config{})
}

// theServerIsRunningWithFullMasks starts a server that returns image-sized masks.
func (testCtx *TestContext) theServerIsRunningWithFullMasks() error {
	return testCtx.startServer(server.Config{FullMask: true})
}

// theServerIsRunningWithCORSOrigin starts a server with a CORS origin.
func (testCtx *TestContext) theServerIsRunningWithCORSOrigin(origin string) error {
	return testCtx.startServer(server.Config{CORSOrigin: origin})
}

// theServerIsRunningWithRateLimit starts a server allowing n requests per minute.
func (testCtx *TestContext) theServerIsRunningWithRateLimit(n int) error {
	return testCtx.startServer(server.Config{RateLimit: server.RateLimitConfig{
		Enabled:           true,
		RequestsPerMinute: n,
		RequestsPerHour:   1000,
		MaxRequestsPerDay: 10000,
		MaxDataPerDay:     1 << 30,
	}})
}

func (testCtx *TestContext) startServer(cfg server.Config) error {
	if testCtx.HTTPTestServer != nil {
		return errors.New("server already running")
	}
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg.TimeoutSec = 30
	cfg.Worker = worker.DefaultConfig()
	cfg.Worker.MaxWorkers = 2

	s := server.NewServer(cfg)
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	testCtx.HTTPTestServer = &HTTPTestServerWrapper{
		Server:     httptest.NewServer(mux),
		TestServer: s,
	}
	return nil
}

func (testCtx *TestContext) stopTestHTTPServer() error {
	w := testCtx.HTTPTestServer
	testCtx.HTTPTestServer = nil
	w.Server.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return w.TestServer.Close(ctx)
}

func (testCtx *TestContext) baseURL() (string, error) {
	if testCtx.HTTPTestServer == nil {
		return "", errors.New("server is not running")
	}
	return testCtx.HTTPTestServer.Server.URL, nil
}

func (testCtx *TestContext) storeResponse(resp *http.Response) error {
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	testCtx.LastHTTPStatusCode = resp.StatusCode
	testCtx.LastHTTPResponse = body
	testCtx.LastHTTPHeaders = map[string]string{}
	for k := range resp.Header {
		testCtx.LastHTTPHeaders[k] = resp.Header.Get(k)
	}
	return nil
}

// iGET performs a GET request against the running server.
func (testCtx *TestContext) iGET(endpoint string) error {
	base, err := testCtx.baseURL()
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, base+endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", endpoint, err)
	}
	return testCtx.storeResponse(resp)
}

// iMakeAnOPTIONSRequestTo sends a CORS preflight.
func (testCtx *TestContext) iMakeAnOPTIONSRequestTo(endpoint string) error {
	base, err := testCtx.baseURL()
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodOptions, base+endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("OPTIONS %s: %w", endpoint, err)
	}
	return testCtx.storeResponse(resp)
}

// postSegment uploads the red square scene with the given form fields.
func (testCtx *TestContext) postSegment(fields map[string]string) error {
	base, err := testCtx.baseURL()
	if err != nil {
		return err
	}

	var img bytes.Buffer
	if err := imaging.Encode(&img, testutil.GenerateScene(testutil.DefaultSceneConfig()), imaging.PNG); err != nil {
		return fmt.Errorf("failed to encode scene: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "scene.png")
	if err != nil {
		return err
	}
	if _, err := part.Write(img.Bytes()); err != nil {
		return err
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, base+"/segment", &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("POST /segment: %w", err)
	}
	return testCtx.storeResponse(resp)
}

// redSquareForm is the form of a one-round segmentation of the scene.
func redSquareForm(format, region string) map[string]string {
	return map[string]string{
		"region":     region,
		"foreground": "10.5,10.5",
		"background": "1.5,1.5",
		"iterations": "1",
		"format":     format,
	}
}

// iPOSTTheSceneToSegment segments the whole scene.
func (testCtx *TestContext) iPOSTTheSceneToSegment(format string) error {
	return testCtx.postSegment(redSquareForm(format, "0,0,20,20"))
}

// iPOSTTheSceneToSegmentWithRegion segments inside region.
func (testCtx *TestContext) iPOSTTheSceneToSegmentWithRegion(format, region string) error {
	return testCtx.postSegment(redSquareForm(format, region))
}

// theResponseStatusShouldBe checks the last HTTP status.
func (testCtx *TestContext) theResponseStatusShouldBe(expectedStatus int) error {
	if testCtx.LastHTTPStatusCode != expectedStatus {
		return fmt.Errorf("expected status %d, got %d: %s",
			expectedStatus, testCtx.LastHTTPStatusCode, string(testCtx.LastHTTPResponse))
	}
	return nil
}

// theResponseHeaderShouldBe checks a response header.
func (testCtx *TestContext) theResponseHeaderShouldBe(name, value string) error {
	if got := testCtx.LastHTTPHeaders[http.CanonicalHeaderKey(name)]; got != value {
		return fmt.Errorf("header %s is %q, expected %q", name, got, value)
	}
	return nil
}

func (testCtx *TestContext) responseJSON() (map[string]any, error) {
	var data map[string]any
	if err := json.Unmarshal(testCtx.LastHTTPResponse, &data); err != nil {
		return nil, fmt.Errorf("response is not valid JSON: %w\nBody: %s", err, string(testCtx.LastHTTPResponse))
	}
	return data, nil
}

// theResponseJSONFieldShouldBe compares a string field of the response.
func (testCtx *TestContext) theResponseJSONFieldShouldBe(field, want string) error {
	data, err := testCtx.responseJSON()
	if err != nil {
		return err
	}
	val, err := lookupField(data, field)
	if err != nil {
		return err
	}
	if got := fmt.Sprint(val); got != want {
		return fmt.Errorf("field '%s' is %q, expected %q", field, got, want)
	}
	return nil
}

// theResponseJSONNumberShouldBe compares a numeric field of the response.
func (testCtx *TestContext) theResponseJSONNumberShouldBe(field string, want int) error {
	data, err := testCtx.responseJSON()
	if err != nil {
		return err
	}
	return numberFieldEquals(data, field, want)
}

// theResponseMaskShouldMatchTheRedSquare decodes a PNG body and compares it.
func (testCtx *TestContext) theResponseMaskShouldMatchTheRedSquare() error {
	img, _, err := utils.DecodeImage(bytes.NewReader(testCtx.LastHTTPResponse))
	if err != nil {
		return fmt.Errorf("response is not an image: %w", err)
	}
	mask, _, _ := utils.MaskFromImage(img)
	if !bytes.Equal(mask, testutil.RedSquareScenario().ExpectedMask()) {
		return errors.New("response mask differs from the red square")
	}
	return nil
}

// iConnectToTheWebSocket opens /ws on the running server.
func (testCtx *TestContext) iConnectToTheWebSocket() error {
	base, err := testCtx.baseURL()
	if err != nil {
		return err
	}
	url := "ws" + strings.TrimPrefix(base, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", url, err)
	}
	testCtx.WSConn = conn
	testCtx.WSMessages = nil
	return nil
}

// iSendASegmentMessage sends the red square scene as task id.
func (testCtx *TestContext) iSendASegmentMessage(id string, iterations int) error {
	if testCtx.WSConn == nil {
		return errors.New("websocket is not connected")
	}
	scene := testutil.GenerateScene(testutil.DefaultSceneConfig())
	msg := server.ClientMessage{
		Type:       server.MessageSegment,
		TaskID:     id,
		Image:      &server.WireImage{Width: 20, Height: 20, Pixels: scene.Pix},
		Region:     &grabcut.Rect{Width: 20, Height: 20},
		Foreground: []grabcut.Point{{X: 10.5, Y: 10.5}},
		Background: []grabcut.Point{{X: 1.5, Y: 1.5}},
		Iterations: iterations,
	}
	return testCtx.WSConn.WriteJSON(msg)
}

// iSendTheRawMessage sends text as-is.
func (testCtx *TestContext) iSendTheRawMessage(text string) error {
	if testCtx.WSConn == nil {
		return errors.New("websocket is not connected")
	}
	return testCtx.WSConn.WriteMessage(websocket.TextMessage, []byte(text))
}

// iWaitForTheTaskToFinish reads messages until a terminal one arrives.
func (testCtx *TestContext) iWaitForTheTaskToFinish() error {
	for {
		if err := testCtx.WSConn.SetReadDeadline(time.Now().Add(wsReadTimeout)); err != nil {
			return err
		}
		var msg map[string]any
		if err := testCtx.WSConn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("failed to read message: %w", err)
		}
		testCtx.WSMessages = append(testCtx.WSMessages, msg)
		switch msg["type"] {
		case server.MessageResult, server.MessageCancelled, server.MessageError:
			return nil
		}
	}
}

func (testCtx *TestContext) countMessages(kind string) int {
	n := 0
	for _, m := range testCtx.WSMessages {
		if m["type"] == kind {
			n++
		}
	}
	return n
}

// iShouldReceiveProgressMessages checks the number of progress messages.
func (testCtx *TestContext) iShouldReceiveProgressMessages(want int) error {
	if got := testCtx.countMessages(server.MessageProgress); got != want {
		return fmt.Errorf("received %d progress messages, expected %d", got, want)
	}
	return nil
}

func (testCtx *TestContext) lastMessage() (map[string]any, error) {
	if len(testCtx.WSMessages) == 0 {
		return nil, errors.New("no websocket messages received")
	}
	return testCtx.WSMessages[len(testCtx.WSMessages)-1], nil
}

// theFinalMessageShouldBeOfType checks the terminal message type.
func (testCtx *TestContext) theFinalMessageShouldBeOfType(kind string) error {
	last, err := testCtx.lastMessage()
	if err != nil {
		return err
	}
	if last["type"] != kind {
		return fmt.Errorf("final message is %v, expected %s: %v", last["type"], kind, last)
	}
	return nil
}

// theFinalMessageFieldShouldBe compares a field of the terminal message.
func (testCtx *TestContext) theFinalMessageFieldShouldBe(field, want string) error {
	last, err := testCtx.lastMessage()
	if err != nil {
		return err
	}
	val, err := lookupField(last, field)
	if err != nil {
		return err
	}
	if got := fmt.Sprint(val); got != want {
		return fmt.Errorf("field '%s' is %q, expected %q", field, got, want)
	}
	return nil
}

// theFinalMessageNumberShouldBe compares a numeric field of the terminal message.
func (testCtx *TestContext) theFinalMessageNumberShouldBe(field string, want int) error {
	last, err := testCtx.lastMessage()
	if err != nil {
		return err
	}
	return numberFieldEquals(last, field, want)
}

// RegisterServerSteps registers all server-related step definitions.
func (testCtx *TestContext) RegisterServerSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the server is running$`, testCtx.theServerIsRunning)
	sc.Step(`^the server is running with full masks$`, testCtx.theServerIsRunningWithFullMasks)
	sc.Step(`^the server is running with CORS origin "([^"]*)"$`, testCtx.theServerIsRunningWithCORSOrigin)
	sc.Step(`^the server is running with a limit of (\d+) requests? per minute$`, testCtx.theServerIsRunningWithRateLimit)

	sc.Step(`^I GET "([^"]*)"$`, testCtx.iGET)
	sc.Step(`^I make an OPTIONS request to "([^"]*)"$`, testCtx.iMakeAnOPTIONSRequestTo)
	sc.Step(`^I POST the scene to "/segment" as (png|json)$`, testCtx.iPOSTTheSceneToSegment)
	sc.Step(`^I POST the scene to "/segment" as (png|json) with region "([^"]*)"$`,
		testCtx.iPOSTTheSceneToSegmentWithRegion)

	sc.Step(`^the response status should be (\d+)$`, testCtx.theResponseStatusShouldBe)
	sc.Step(`^the response header "([^"]*)" should be "([^"]*)"$`, testCtx.theResponseHeaderShouldBe)
	sc.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, testCtx.theResponseJSONFieldShouldBe)
	sc.Step(`^the response field "([^"]*)" should be (\d+)$`, testCtx.theResponseJSONNumberShouldBe)
	sc.Step(`^the response mask should match the red square$`, testCtx.theResponseMaskShouldMatchTheRedSquare)

	sc.Step(`^I connect to the websocket$`, testCtx.iConnectToTheWebSocket)
	sc.Step(`^I send a segment message "([^"]*)" with (\d+) iterations?$`, testCtx.iSendASegmentMessage)
	sc.Step(`^I send the raw message '([^']*)'$`, testCtx.iSendTheRawMessage)
	sc.Step(`^I wait for the task to finish$`, testCtx.iWaitForTheTaskToFinish)
	sc.Step(`^I should receive (\d+) progress messages$`, testCtx.iShouldReceiveProgressMessages)
	sc.Step(`^the final message should be "([^"]*)"$`, testCtx.theFinalMessageShouldBeOfType)
	sc.Step(`^the final message field "([^"]*)" should be "([^"]*)"$`, testCtx.theFinalMessageFieldShouldBe)
	sc.Step(`^the final message field "([^"]*)" should be (\d+)$`, testCtx.theFinalMessageNumberShouldBe)
}
