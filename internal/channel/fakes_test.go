package channel

import (
	"io"
	"log/slog"
	"net/http"
	"sync"

	"relaybot/internal/domain"

	"github.com/bwmarrin/discordgo"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func restError(status, code int) *discordgo.RESTError {
	return &discordgo.RESTError{
		Response: &http.Response{StatusCode: status, Status: http.StatusText(status)},
		Message:  &discordgo.APIErrorMessage{Code: code, Message: "test"},
	}
}

// fakeAPI records calls made against the Discord REST surface.
type fakeAPI struct {
	mu sync.Mutex

	hooks       []*discordgo.Webhook
	listErr     error
	createErr   error
	executeErr  error
	sendErr     error
	created     int
	executed    []*discordgo.WebhookParams
	executedIDs []string
	sent        []*discordgo.MessageSend
	uploaded    [][]byte // file bodies per call, concatenated

	messages    map[string][]*discordgo.Message // successive ChannelMessage results
	messageErr  error
	fetches     int
	guilds      map[string]*discordgo.Guild
	permissions map[string]int64
}

func (f *fakeAPI) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, data)
	f.uploaded = append(f.uploaded, readFiles(data.Files))
	return &discordgo.Message{ID: "m1", ChannelID: channelID}, nil
}

func (f *fakeAPI) ChannelMessage(channelID, messageID string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.messageErr != nil {
		return nil, f.messageErr
	}
	queue := f.messages[messageID]
	if len(queue) == 0 {
		return &discordgo.Message{ID: messageID, ChannelID: channelID, Author: &discordgo.User{ID: "u1"}}, nil
	}
	m := queue[0]
	if len(queue) > 1 {
		f.messages[messageID] = queue[1:]
	}
	return m, nil
}

func (f *fakeAPI) ChannelWebhooks(channelID string, _ ...discordgo.RequestOption) ([]*discordgo.Webhook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*discordgo.Webhook
	for _, h := range f.hooks {
		if h.ChannelID == channelID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *fakeAPI) WebhookCreate(channelID, name, _ string, _ ...discordgo.RequestOption) (*discordgo.Webhook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created++
	h := &discordgo.Webhook{ID: "wh-" + channelID, ChannelID: channelID, Name: name, Token: "tok"}
	f.hooks = append(f.hooks, h)
	return h, nil
}

func (f *fakeAPI) WebhookExecute(webhookID, _ string, _ bool, data *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.executeErr != nil {
		return nil, f.executeErr
	}
	f.executed = append(f.executed, data)
	f.executedIDs = append(f.executedIDs, webhookID)
	f.uploaded = append(f.uploaded, readFiles(data.Files))
	return &discordgo.Message{ID: "m1"}, nil
}

func (f *fakeAPI) Guild(guildID string, _ ...discordgo.RequestOption) (*discordgo.Guild, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.guilds[guildID]
	if !ok {
		return nil, restError(http.StatusNotFound, discordgo.ErrCodeUnknownGuild)
	}
	return g, nil
}

func (f *fakeAPI) UserChannelPermissions(_, channelID string, _ ...discordgo.RequestOption) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.permissions[channelID]
	if !ok {
		return 0, restError(http.StatusNotFound, discordgo.ErrCodeUnknownChannel)
	}
	return p, nil
}

func readFiles(files []*discordgo.File) []byte {
	var out []byte
	for _, f := range files {
		b, _ := io.ReadAll(f.Reader)
		out = append(out, b...)
	}
	return out
}

// recordingBus collects published messages.
type recordingBus struct {
	mu   sync.Mutex
	msgs []domain.InboundMessage
	ch   chan domain.InboundMessage
}

func newRecordingBus() *recordingBus {
	return &recordingBus{ch: make(chan domain.InboundMessage, 16)}
}

func (b *recordingBus) Publish(msg domain.InboundMessage) {
	b.mu.Lock()
	b.msgs = append(b.msgs, msg)
	b.mu.Unlock()
	b.ch <- msg
}

func (b *recordingBus) Subscribe() <-chan domain.InboundMessage { return b.ch }
func (b *recordingBus) Close()                                  {}

func (b *recordingBus) published() []domain.InboundMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.InboundMessage(nil), b.msgs...)
}
