package tgclient

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zelenin/go-tdlib/client"
)

// tdAPI is the narrow slice of the TDLib client surface this adapter uses.
// Keeping it as an interface lets adapter tests run against a mock instead
// of a real TDLib session.
type tdAPI interface {
	GetMe() (*client.User, error)
	GetChat(req *client.GetChatRequest) (*client.Chat, error)
	SearchPublicChat(req *client.SearchPublicChatRequest) (*client.Chat, error)
	GetChats(req *client.GetChatsRequest) (*client.Chats, error)
	LoadChats(req *client.LoadChatsRequest) (*client.Ok, error)
	GetMessage(req *client.GetMessageRequest) (*client.Message, error)
	GetChatHistory(req *client.GetChatHistoryRequest) (*client.Messages, error)
	DownloadFile(req *client.DownloadFileRequest) (*client.File, error)
	GetFile(req *client.GetFileRequest) (*client.File, error)
	Close() (*client.Ok, error)
}

// TDLib message ids are the link-visible server id shifted left by 20 bits.
const messageIDShift = 20

// initTimeout bounds the initial TDLib handshake, not individual calls:
// large transfers run for as long as they need.
const initTimeout = 30 * time.Second

// progressPollInterval is how often an in-flight download's file state is
// polled for progress reporting.
const progressPollInterval = 500 * time.Millisecond

// TDLibClient implements Client on top of the zelenin/go-tdlib bindings.
// One instance is shared process-wide; TDLib serializes remote calls
// internally.
type TDLibClient struct {
	creds       *Credentials
	storageRoot string
	verbosity   int

	mu        sync.Mutex
	td        tdAPI
	raw       *client.Client // kept for the update listener; nil under mocks
	connected bool
}

// NewTDLibClient creates an unconnected client. Connect must be called
// before any other operation.
func NewTDLibClient(creds *Credentials, storageRoot string, verbosity int) *TDLibClient {
	return &TDLibClient{creds: creds, storageRoot: storageRoot, verbosity: verbosity}
}

// Connect establishes the TDLib session, running the interactive login
// ceremony (phone code, optional 2FA password) through the library's CLI
// interactor on first use. The resulting session is persisted in the TDLib
// database under the storage root, so subsequent starts connect without
// interaction. Connect is a no-op when already connected.
func (c *TDLibClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.td != nil && c.connected {
		return nil
	}

	if c.td != nil {
		// An existing session that dropped: a lightweight identity call
		// nudges TDLib's own network layer and confirms liveness.
		if _, err := c.td.GetMe(); err != nil {
			return fmt.Errorf("session is not responding: %w", err)
		}
		c.connected = true
		log.Info().Msg("Session re-established")
		return nil
	}

	td, raw, err := c.initialize(ctx)
	if err != nil {
		return err
	}
	c.td = td
	c.raw = raw
	c.connected = true

	if raw != nil {
		go c.watchConnectionState(raw)
	}
	return nil
}

func (c *TDLibClient) initialize(ctx context.Context) (tdAPI, *client.Client, error) {
	dbDir := filepath.Join(c.storageRoot, ".tdlib", "database")
	filesDir := filepath.Join(c.storageRoot, ".tdlib", "files")
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	if err := os.MkdirAll(filesDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create files directory: %w", err)
	}
	log.Info().Str("database_dir", dbDir).Msg("Using TDLib database directory")

	authorizer := client.ClientAuthorizer()
	authorizer.TdlibParameters <- &client.SetTdlibParametersRequest{
		UseTestDc:           false,
		DatabaseDirectory:   dbDir,
		FilesDirectory:      filesDir,
		UseFileDatabase:     true,
		UseChatInfoDatabase: true,
		UseMessageDatabase:  true,
		UseSecretChats:      false,
		ApiId:               int32(c.creds.APIID),
		ApiHash:             c.creds.APIHash,
		SystemLanguageCode:  "en",
		DeviceModel:         "Server",
		SystemVersion:       "1.0.0",
		ApplicationVersion:  "1.0.0",
	}

	// The CLI interactor reads TG_PHONE_NUMBER during the login ceremony
	// and prompts for the one-time code on stdin.
	if c.creds.PhoneNumber != "" {
		os.Setenv("TG_PHONE_NUMBER", c.creds.PhoneNumber)
		log.Info().
			Str("phone_number_masked", maskPhoneNumber(c.creds.PhoneNumber)).
			Msg("Prepared phone number for the login ceremony")
	}
	go client.CliInteractor(authorizer)

	clientReady := make(chan *client.Client)
	errChan := make(chan error)
	go func() {
		tdlibClient, err := client.NewClient(authorizer)
		if err != nil {
			errChan <- fmt.Errorf("failed to initialize TDLib client: %w", err)
			return
		}
		tdlibClient.SetLogVerbosityLevel(&client.SetLogVerbosityLevelRequest{
			NewVerbosityLevel: int32(c.verbosity),
		})
		clientReady <- tdlibClient
	}()

	select {
	case tdlibClient := <-clientReady:
		log.Info().Msg("TDLib client initialized successfully")
		return tdlibClient, tdlibClient, nil
	case err := <-errChan:
		return nil, nil, err
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case <-time.After(initTimeout):
		return nil, nil, fmt.Errorf("timeout initializing TDLib client")
	}
}

// watchConnectionState tracks TDLib connection updates and keeps the
// connectivity flag current. TDLib reconnects its own transport; the flag
// only reflects what it reports.
func (c *TDLibClient) watchConnectionState(raw *client.Client) {
	listener := raw.GetListener()
	defer listener.Close()

	for update := range listener.Updates {
		state, ok := update.(*client.UpdateConnectionState)
		if !ok {
			continue
		}
		_, ready := state.State.(*client.ConnectionStateReady)
		c.mu.Lock()
		c.connected = ready
		c.mu.Unlock()
		log.Debug().Str("state", state.State.ConnectionStateType()).Msg("Connection state changed")
	}
}

// Disconnect closes the TDLib session.
func (c *TDLibClient) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.td == nil {
		return nil
	}
	_, err := c.td.Close()
	c.td = nil
	c.raw = nil
	c.connected = false
	return err
}

// IsConnected reports the connectivity flag maintained by the connection
// state watcher.
func (c *TDLibClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.td != nil && c.connected
}

// CheckAuthorization performs the keep-alive identity check.
func (c *TDLibClient) CheckAuthorization(ctx context.Context) error {
	td, err := c.api()
	if err != nil {
		return err
	}
	user, err := td.GetMe()
	if err != nil {
		c.noteCallFailure(err)
		return fmt.Errorf("identity check failed: %w", err)
	}
	log.Debug().Str("first_name", user.FirstName).Msg("Identity check succeeded")
	return nil
}

// ResolveEntity resolves a username or numeric id string to a peer. Numeric
// identifiers (raw, negated or -100-prefixed) go through chat lookup;
// anything else is treated as a public username.
func (c *TDLibClient) ResolveEntity(ctx context.Context, identifier string) (*Peer, error) {
	td, err := c.api()
	if err != nil {
		return nil, err
	}

	if id, numErr := strconv.ParseInt(identifier, 10, 64); numErr == nil {
		chat, err := td.GetChat(&client.GetChatRequest{ChatId: id})
		if err != nil {
			c.noteCallFailure(err)
			return nil, fmt.Errorf("failed to resolve chat id %d: %w", id, err)
		}
		return chatToPeer(chat), nil
	}

	chat, err := td.SearchPublicChat(&client.SearchPublicChatRequest{Username: identifier})
	if err != nil {
		c.noteCallFailure(err)
		return nil, fmt.Errorf("failed to resolve username %q: %w", identifier, err)
	}
	peer := chatToPeer(chat)
	peer.Username = identifier
	return peer, nil
}

// ListRecentConversations returns up to limit entries from the session's
// chat list. LoadChats is called first so TDLib populates the list from the
// server; it reports 404 once everything is already loaded, which is not an
// error.
func (c *TDLibClient) ListRecentConversations(ctx context.Context, limit int) ([]*Peer, error) {
	td, err := c.api()
	if err != nil {
		return nil, err
	}

	if _, err := td.LoadChats(&client.LoadChatsRequest{Limit: int32(limit)}); err != nil {
		if !strings.Contains(err.Error(), "404") {
			log.Debug().Err(err).Msg("LoadChats reported an error, continuing with cached list")
		}
	}

	chats, err := td.GetChats(&client.GetChatsRequest{Limit: int32(limit)})
	if err != nil {
		c.noteCallFailure(err)
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	peers := make([]*Peer, 0, len(chats.ChatIds))
	for _, chatID := range chats.ChatIds {
		chat, err := td.GetChat(&client.GetChatRequest{ChatId: chatID})
		if err != nil {
			log.Debug().Err(err).Int64("chat_id", chatID).Msg("Skipping unloadable conversation")
			continue
		}
		peers = append(peers, chatToPeer(chat))
	}
	return peers, nil
}

// GetMessageByID fetches one message by its link-visible id. TDLib reports
// a missing message as an error; that case maps to (nil, nil) so callers
// can fall back to scanning.
func (c *TDLibClient) GetMessageByID(ctx context.Context, peer *Peer, messageID int64) (*Message, error) {
	td, err := c.api()
	if err != nil {
		return nil, err
	}

	msg, err := td.GetMessage(&client.GetMessageRequest{
		ChatId:    peer.ID,
		MessageId: messageID << messageIDShift,
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, nil
		}
		c.noteCallFailure(err)
		return nil, fmt.Errorf("failed to fetch message %d: %w", messageID, err)
	}
	return mapMessage(msg), nil
}

// GetRecentMessages returns up to limit of the peer's newest messages.
func (c *TDLibClient) GetRecentMessages(ctx context.Context, peer *Peer, limit int) ([]*Message, error) {
	td, err := c.api()
	if err != nil {
		return nil, err
	}

	history, err := td.GetChatHistory(&client.GetChatHistoryRequest{
		ChatId: peer.ID,
		Limit:  int32(limit),
	})
	if err != nil {
		c.noteCallFailure(err)
		return nil, fmt.Errorf("failed to fetch chat history: %w", err)
	}

	messages := make([]*Message, 0, len(history.Messages))
	for _, msg := range history.Messages {
		messages = append(messages, mapMessage(msg))
	}
	return messages, nil
}

// DownloadMedia transfers the message's media into opts.OutputPath. The
// download itself is synchronous; a poller goroutine reports progress from
// TDLib's file state while it runs. TDLib resumes partially-downloaded
// files from its own cache, so a retry after a dropped connection does not
// start from zero.
func (c *TDLibClient) DownloadMedia(ctx context.Context, msg *Message, opts DownloadOptions) error {
	td, err := c.api()
	if err != nil {
		return err
	}
	if msg.Media == nil {
		return fmt.Errorf("message %d has no downloadable media", msg.ID)
	}

	stopPoll := make(chan struct{})
	var pollDone sync.WaitGroup
	if opts.OnProgress != nil {
		pollDone.Add(1)
		go func() {
			defer pollDone.Done()
			c.pollProgress(td, msg.Media.FileID, msg.Media.Size, opts.OnProgress, stopPoll)
		}()
	}

	file, err := td.DownloadFile(&client.DownloadFileRequest{
		FileId:      msg.Media.FileID,
		Priority:    1,
		Synchronous: true,
	})
	close(stopPoll)
	pollDone.Wait()

	if err != nil {
		c.noteCallFailure(err)
		return fmt.Errorf("download failed: %w", err)
	}
	if file.Local == nil || file.Local.Path == "" {
		return fmt.Errorf("download completed but TDLib reported no local path")
	}

	if err := moveFile(file.Local.Path, opts.OutputPath); err != nil {
		return fmt.Errorf("failed to place downloaded file: %w", err)
	}
	if opts.OnProgress != nil {
		opts.OnProgress(file.Size, file.Size)
	}
	return nil
}

func (c *TDLibClient) pollProgress(td tdAPI, fileID int32, sizeHint int64, onProgress ProgressFunc, stop <-chan struct{}) {
	ticker := time.NewTicker(progressPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			file, err := td.GetFile(&client.GetFileRequest{FileId: fileID})
			if err != nil || file.Local == nil {
				continue
			}
			total := file.Size
			if total == 0 {
				total = sizeHint
			}
			onProgress(file.Local.DownloadedSize, total)
		}
	}
}

// api returns the underlying TDLib handle, failing when the session was
// never connected.
func (c *TDLibClient) api() (tdAPI, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.td == nil {
		return nil, fmt.Errorf("telegram client is not connected")
	}
	return c.td, nil
}

// noteCallFailure flips the connectivity flag when a remote call fails in a
// way that indicates the transport is down, so that callers observing the
// failure see IsConnected() == false.
func (c *TDLibClient) noteCallFailure(err error) {
	if !isConnectionError(err) {
		return
	}
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
}

func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	text := strings.ToLower(err.Error())
	return strings.Contains(text, "not found") || strings.Contains(text, "404")
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	text := strings.ToLower(err.Error())
	for _, marker := range []string{"disconnect", "connection", "timeout", "timed out", "reset", "broken pipe"} {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}
