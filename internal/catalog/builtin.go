package catalog

import "github.com/rhoci/rhoci/internal/models"

// Builtin returns the failure signatures shipped with the agent.
func Builtin() []models.FailureSignature {
	return []models.FailureSignature{
		{
			Name:     "conn-refused",
			Category: "infra",
			Pattern:  `ConnectionRefusedError`,
			Action:   "Check that the target service is up and listening on the expected port.",
			Cause:    "A service the job depends on refused the connection.",
		},
		{
			Name:     "no-space-left",
			Category: "infra",
			Pattern:  `No space left on device`,
			Action:   "Clean the workspace or move the job to a node with more disk.",
			Cause:    "The build node ran out of disk space.",
		},
		{
			Name:     "ssh-unreachable",
			Category: "infra",
			Pattern:  `ssh: connect to host \S+ port \d+: (Connection timed out|No route to host)`,
			Action:   "Verify the provisioned host is reachable and sshd is running.",
			Cause:    "The job could not reach a provisioned host over SSH.",
		},
		{
			Name:     "repo-unavailable",
			Category: "infra",
			Pattern:  `(Cannot find a valid baseurl for repo|Failed to download metadata for repo)`,
			Action:   "Check the repository mirror and the repo files injected into the node.",
			Cause:    "A package repository was unreachable or broken.",
		},
		{
			Name:              "ansible-task-failed",
			Category:          "deployment",
			Pattern:           `fatal: \[[^\]]+\]: FAILED!`,
			LowerBoundPattern: `TASK \[`,
			UpperBoundPattern: `PLAY RECAP`,
			Action:            "Inspect the failing task output and the host it ran on.",
			Cause:             "An Ansible task failed during deployment.",
		},
		{
			Name:     "overcloud-deploy-failed",
			Category: "deployment",
			Pattern:  `(Overcloud Deployed with error|Stack overcloud (CREATE|UPDATE)_FAILED)`,
			Action:   "Run 'openstack stack failures list overcloud' on the undercloud.",
			Cause:    "Overcloud deployment did not complete.",
		},
		{
			Name:              "tempest-test-failed",
			Category:          "tests",
			Pattern:           `tempest\.\S+ \.\.\. FAILED`,
			LowerBoundPattern: `Traceback \(most recent call last\)`,
			Action:            "Review the tempest failure and the service logs around it.",
			Cause:             "One or more tempest tests failed.",
		},
		{
			Name:     "build-timeout",
			Category: "ci",
			Pattern:  `Build timed out \(after \d+ minutes\)`,
			Action:   "Raise the job timeout or find the step that hangs.",
			Cause:    "The build exceeded its configured timeout.",
		},
		{
			Name:     "java-oom",
			Category: "ci",
			Pattern:  `java\.lang\.OutOfMemoryError`,
			Action:   "Increase the heap of the Jenkins agent.",
			Cause:    "The Jenkins agent ran out of memory.",
		},
	}
}
