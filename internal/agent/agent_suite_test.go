package agent

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"algokg.app/core/common/id"
)

func TestAgent(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Agent Suite")
}

var _ = BeforeSuite(func() {
	// Initialize snowflake ID generator for tool-call event ids
	err := id.Init(99)
	Expect(err).NotTo(HaveOccurred())
})
