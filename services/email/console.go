package emailsvc

import (
	"fmt"
	"log"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/kudatec/karo/core"
)

var (
	// SentMessages collects sent mail in TEST mode for assertions.
	SentMessages = make([]core.EmailMessage, 0)
	mu           sync.Mutex
)

type consoleService struct {
	defaultFromEmail mail.Address
	subjPrefix       string
	disableOutput    bool
}

var _ core.EmailService = (*consoleService)(nil)

func NewConsoleService() core.EmailService {
	return &consoleService{
		defaultFromEmail: core.Conf.DefaultFromEmailAddr(),
		subjPrefix:       "[" + core.Conf.AppName + "] ",
		disableOutput:    core.Conf.TestMode,
	}
}

func (svc consoleService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		go svc.sendMessage(msg)
	}
}

func (svc consoleService) sendMessage(msg *core.EmailMessage) {
	if err := msg.Render(); err != nil {
		log.Printf("%+v", errors.Wrap(err, "rendering email"))
		return
	}
	if msg.HasRecipients() && msg.HasContent() {
		svc.send(*msg)
		mu.Lock()
		SentMessages = append(SentMessages, *msg)
		mu.Unlock()
	}
}

func (svc consoleService) send(msg core.EmailMessage) {
	if svc.disableOutput {
		return
	}

	body := new(strings.Builder)
	_, _ = fmt.Fprintf(body, "From: %s\r\n", svc.defaultFromEmail.String())
	_, _ = fmt.Fprintf(body, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	_, _ = fmt.Fprintf(body, "Subject: %s\r\n", svc.subjPrefix+msg.Subject)
	for _, to := range msg.To {
		_, _ = fmt.Fprintf(body, "To: %s\r\n", to.String())
	}
	_, _ = fmt.Fprint(body, "\r\n")
	switch {
	case msg.TextContent != "":
		_, _ = fmt.Fprint(body, msg.TextContent)
	case msg.BodyStr != "":
		_, _ = fmt.Fprint(body, msg.BodyStr)
	default:
		_, _ = fmt.Fprint(body, msg.HTMLContent)
	}
	log.Println(body.String())
}
