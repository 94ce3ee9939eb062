package connection

import (
	"fmt"
	"net"
	"os"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/m-217/passwdctl/passwd/secret"
)

// KeyManager supplies the signers offered during public key authentication.
type KeyManager interface {
	Signers() ([]ssh.Signer, error)
}

// FileKeyManager loads a single private key from disk. Passphrase decrypts
// the key when it is protected.
type FileKeyManager struct {
	Path       string
	Passphrase *secret.Secret
}

func (km FileKeyManager) Signers() ([]ssh.Signer, error) {
	keyBytes, err := os.ReadFile(km.Path)
	if err != nil {
		return nil, fmt.Errorf("could not read private key %s: %v", km.Path, err)
	}
	defer secret.Wipe(keyBytes)

	var signer ssh.Signer
	err = km.Passphrase.Access(func(pass []byte) error {
		var perr error
		if len(pass) > 0 {
			signer, perr = ssh.ParsePrivateKeyWithPassphrase(keyBytes, pass)
		} else {
			signer, perr = ssh.ParsePrivateKey(keyBytes)
		}
		return perr
	})
	if err != nil {
		return nil, fmt.Errorf("could not parse private key %s: %v", km.Path, err)
	}

	return []ssh.Signer{signer}, nil
}

// AgentKeyManager asks a running ssh-agent for its keys. The agent socket
// stays open until Close because agent signers sign through it.
type AgentKeyManager struct {
	// Socket defaults to $SSH_AUTH_SOCK.
	Socket string

	mu   sync.Mutex
	conn net.Conn
}

func (km *AgentKeyManager) Signers() ([]ssh.Signer, error) {
	km.mu.Lock()
	defer km.mu.Unlock()

	socket := km.Socket
	if socket == "" {
		socket = os.Getenv("SSH_AUTH_SOCK")
	}
	if socket == "" {
		return nil, fmt.Errorf("SSH_AUTH_SOCK not set")
	}

	if km.conn == nil {
		conn, err := net.Dial("unix", socket)
		if err != nil {
			return nil, fmt.Errorf("could not connect to SSH agent: %v", err)
		}
		km.conn = conn
	}

	signers, err := agent.NewClient(km.conn).Signers()
	if err != nil {
		return nil, fmt.Errorf("could not get signers from SSH agent: %v", err)
	}
	return signers, nil
}

func (km *AgentKeyManager) Close() error {
	km.mu.Lock()
	defer km.mu.Unlock()
	if km.conn == nil {
		return nil
	}
	err := km.conn.Close()
	km.conn = nil
	return err
}
