// Minimal end-to-end integration test for the govledger API.
package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"

	schnorrkel "github.com/ChainSafe/go-schnorrkel"
	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

var baseURL = getenv("API_URL", "http://localhost:8080/v1")

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

type wallet struct {
	sk   *schnorrkel.SecretKey
	addr string
}

func main() {
	author := newWallet()
	voter := newWallet()

	authorTok := login(author)
	voterTok := login(voter)

	id := createProposal(authorTok)
	checkProposal(id, author.addr)

	castVote(voterTok, id, "yes", http.StatusCreated)
	castVote(voterTok, id, "no", http.StatusConflict)
	checkVoted(voterTok, id)
	checkResults(id)

	doReq("DELETE", "/proposals/"+id, voterTok, nil, nil, http.StatusForbidden)
	doReq("DELETE", "/proposals/"+id, authorTok, nil, nil, http.StatusNoContent)
	doReq("GET", "/proposals/"+id, "", nil, nil, http.StatusNotFound)

	fmt.Println("✓ all endpoints passed")
}

// ----------------------------- auth

func newWallet() wallet {
	sk, pk, err := schnorrkel.GenerateKeypair()
	if err != nil {
		log.Fatalf("keypair: %v", err)
	}
	pub := pk.Encode()
	body := append([]byte{42}, pub[:]...)
	h, _ := blake2b.New512(nil)
	h.Write([]byte("SS58PRE"))
	h.Write(body)
	return wallet{sk: sk, addr: base58.Encode(append(body, h.Sum(nil)[:2]...))}
}

func login(w wallet) string {
	var ch struct{ Nonce string }
	doReq("POST", "/auth/challenge", "", map[string]any{"address": w.addr}, &ch, http.StatusOK)
	if ch.Nonce == "" {
		log.Fatal("challenge: empty nonce")
	}

	sig, err := w.sk.Sign(schnorrkel.NewSigningContext([]byte("substrate"), []byte(ch.Nonce)))
	if err != nil {
		log.Fatalf("sign: %v", err)
	}
	raw := sig.Encode()

	var resp struct{ Token string }
	doReq("POST", "/auth/verify", "", map[string]any{
		"address":   w.addr,
		"signature": "0x" + hex.EncodeToString(raw[:]),
	}, &resp, http.StatusOK)
	if resp.Token == "" {
		log.Fatal("verify: empty token")
	}
	return resp.Token
}

// ----------------------------- proposals

func createProposal(tok string) string {
	var resp struct{ ID string }
	doReq("POST", "/proposals", tok, map[string]any{
		"title":        "integration-test " + uuid.NewString(),
		"description":  "created by scripts/api",
		"durationDays": 1,
	}, &resp, http.StatusCreated)
	return resp.ID
}

func checkProposal(id, author string) {
	var p struct {
		ID       string
		AuthorID string `json:"authorId"`
	}
	doReq("GET", "/proposals/"+id, "", nil, &p, http.StatusOK)
	if p.AuthorID != author {
		log.Fatalf("proposal: author %q, want %q", p.AuthorID, author)
	}
}

// ----------------------------- votes

func castVote(tok, id, choice string, want int) {
	doReq("POST", "/proposals/"+id+"/votes", tok, map[string]any{"choice": choice}, nil, want)
}

func checkVoted(tok, id string) {
	var resp struct{ Voted bool }
	doReq("GET", "/proposals/"+id+"/votes/me", tok, nil, &resp, http.StatusOK)
	if !resp.Voted {
		log.Fatal("votes: ballot not recorded")
	}
}

func checkResults(id string) {
	var results []struct {
		ProposalID string `json:"proposalId"`
		YesVotes   uint64 `json:"yesVotes"`
	}
	doReq("GET", "/results", "", nil, &results, http.StatusOK)
	for _, r := range results {
		if r.ProposalID == id && r.YesVotes == 1 {
			return
		}
	}
	log.Fatal("results: tally missing yes vote")
}

// ----------------------------- helpers

func doReq(method, path, token string, body, out any, want int) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			log.Fatalf("%s %s encode: %v", method, path, err)
		}
	}
	req, _ := http.NewRequest(method, baseURL+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, path, err)
	}
	defer res.Body.Close()
	if res.StatusCode != want {
		log.Fatalf("%s %s: want %d got %d", method, path, want, res.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			log.Fatalf("%s %s decode: %v", method, path, err)
		}
	}
}
