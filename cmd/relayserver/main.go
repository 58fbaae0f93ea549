// Command relayserver is the relay's process entry point: it parses flags,
// wires the repositories/session service/router/handlers into a
// connmgr.Manager, starts the listener, and blocks until an interrupt or
// terminate signal asks it to drain and exit. Grounded on cmd/relay/main.go's
// flag-parsing/banner/signal-handling shape, stripped of the blockchain
// registration and mesh-formation pieces that have no home in this spec.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/chatrelay/relayd/internal/connmgr"
	"github.com/chatrelay/relayd/internal/handler"
	"github.com/chatrelay/relayd/internal/idgen"
	"github.com/chatrelay/relayd/internal/repo"
	"github.com/chatrelay/relayd/internal/router"
	"github.com/chatrelay/relayd/internal/scheduler"
	"github.com/chatrelay/relayd/internal/servercontext"
	"github.com/chatrelay/relayd/internal/session"
)

const contactRequestSweepInterval = time.Minute

var (
	port               = flag.Int("port", 1666, "port to listen on")
	workerThreads      = flag.Int("workers", defaultWorkerThreads(), "bounded worker pool size for packet processing, default max(2, NumCPU)")
	identifyTimeout    = flag.Duration("identify-timeout", time.Second, "time a key-exchanged connection has to identify before it is closed")
	keyExchangeTimeout = flag.Duration("keyexchange-timeout", 5*time.Second, "time an accepted connection has to complete key exchange before it is closed")
	realCipher         = flag.Bool("real-cipher", true, "use ChaCha20-Poly1305 for session encryption; false runs the XOR placeholder cipher")
)

func main() {
	flag.Parse()
	printBanner()

	cfg := connmgr.DefaultConfig(*port)
	cfg.WorkerThreads = *workerThreads
	cfg.IdentifyTimeout = *identifyTimeout
	cfg.KeyExchangeTimeout = *keyExchangeTimeout

	cipherFactory := session.NewRealCipher
	if !*realCipher {
		cipherFactory = func(key []byte) (session.Cipher, error) {
			return session.NewPlaceholderCipher(key), nil
		}
		log.Println("⚠️  running with placeholder cipher, not for production use")
	}
	sessionSvc := session.NewService(cipherFactory)

	users := repo.NewUsers()
	groups := repo.NewGroups()
	contactRequests := repo.NewContactRequests()

	rtr := router.New()
	rtr.Register(handler.NewUserManagementHandler())
	rtr.Register(handler.NewRelayMessageHandler())
	rtr.Register(handler.NewAckMessageHandler())
	rtr.Register(handler.NewContactRequestHandler())
	rtr.Register(handler.NewGroupHandler())
	rtr.Register(handler.NewKeyExchangeRelayHandler())

	mgr := connmgr.New(cfg, sessionSvc, rtr)
	sc := servercontext.New(users, groups, contactRequests, idgen.New(), mgr)
	mgr.SetContext(sc)

	if err := mgr.Start(); err != nil {
		log.Fatalf("failed to start relay: %v", err)
	}

	sched := scheduler.New()
	defer sched.Stop()
	startContactRequestSweeper(sched, contactRequests)

	log.Printf("✅ relay running on port %d (workers=%d)", *port, cfg.WorkerThreads)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Println("🛑 shutting down")
	if err := mgr.Stop(); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}

// startContactRequestSweeper registers the periodic pending-contact-request
// eviction with sched, so a never-answered request doesn't linger forever.
func startContactRequestSweeper(sched *scheduler.Scheduler, reqs *repo.ContactRequests) {
	sched.Every(contactRequestSweepInterval, func() {
		if n := reqs.Sweep(time.Now()); n > 0 {
			log.Printf("swept %d expired contact request(s)", n)
		}
	})
}

func defaultWorkerThreads() int {
	if n := runtime.NumCPU(); n > 2 {
		return n
	}
	return 2
}

func printBanner() {
	fmt.Println("──────────────────────────────────────────")
	fmt.Println(" chatrelay relay server")
	fmt.Println("──────────────────────────────────────────")
}
